package virtual

import (
	"context"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/fieldgw/igw/channel"
	"github.com/fieldgw/igw/core"
)

var virtualBucket = []byte("virtual")

// Channel is an in-memory data hub with no physical transport: any caller
// can write a point and every other consumer sees it, through the same
// path WriteControl and WriteAdjustment use. It is always Connected;
// Connect and Disconnect are no-ops aside from bookkeeping. When cfg has a
// PersistPath, the latest-value cache is mirrored into a bbolt database so
// values survive a process restart.
type Channel struct {
	id   uint32
	name string
	cfg  Config

	points      map[uint32]core.PointConfig
	broadcaster *channel.Broadcaster

	db *bolt.DB

	mu    sync.Mutex
	diag  core.Diagnostics
	cache map[uint32]core.DataPoint
}

// New builds a virtual channel. Configured points are indexed by ID so a
// write against an unconfigured ID can still be accepted and cached (the
// hub has no fixed point list, unlike a polled protocol).
func New(id uint32, name string, cfg Config) *Channel {
	points := make(map[uint32]core.PointConfig, len(cfg.Points))
	for _, p := range cfg.Points {
		points[p.ID] = p
	}
	bufSize := cfg.BufferSize
	if bufSize < 1 {
		bufSize = 32
	}
	return &Channel{
		id:          id,
		name:        name,
		cfg:         cfg,
		points:      points,
		broadcaster: channel.NewBroadcaster(bufSize),
		diag:        core.NewDiagnostics("virtual"),
		cache:       make(map[uint32]core.DataPoint),
	}
}

// ConfiguredPoints returns the point configs supplied at construction, for
// callers (the factory, a router) that need the hub's declared point list
// rather than whatever has actually been written so far.
func (c *Channel) ConfiguredPoints() []core.PointConfig {
	out := make([]core.PointConfig, 0, len(c.points))
	for _, p := range c.points {
		out = append(out, p)
	}
	return out
}

func (c *Channel) ID() uint32          { return c.id }
func (c *Channel) Name() string        { return c.name }
func (c *Channel) Protocol() string    { return "virtual" }
func (c *Channel) IsEventDriven() bool { return true }
func (c *Channel) Modes() []core.CommunicationMode {
	return []core.CommunicationMode{core.EventDriven, core.Polling}
}

// Connect opens the optional persistence store and restores any values
// written in a previous run. The channel reports Connected even if this is
// never called; Connect only wires up persistence.
func (c *Channel) Connect(ctx context.Context) error {
	if c.cfg.PersistPath != "" && c.db == nil {
		db, err := bolt.Open(c.cfg.PersistPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
		if err != nil {
			return core.IOErr(err)
		}
		if err := db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(virtualBucket)
			return err
		}); err != nil {
			db.Close()
			return core.IOErr(err)
		}
		c.db = db
		c.restoreFromDB()
	}
	return nil
}

// Disconnect closes the persistence store, if any. The in-memory cache is
// preserved so values remain readable until the process exits.
func (c *Channel) Disconnect(ctx context.Context) error {
	if c.db != nil {
		err := c.db.Close()
		c.db = nil
		if err != nil {
			return core.IOErr(err)
		}
	}
	return nil
}

// ConnectionState is always Connected: a virtual channel has no physical
// link to lose.
func (c *Channel) ConnectionState() core.ConnectionState { return core.Connected }

// PollOnce returns a snapshot of the latest-value cache, filtered by req.
func (c *Channel) PollOnce(ctx context.Context, req core.ReadRequest) (core.ReadResponse, error) {
	var batch core.DataBatch
	c.mu.Lock()
	for _, dp := range c.cache {
		if !dataPointSelected(dp, req) {
			continue
		}
		batch.Add(dp)
	}
	c.diag.ReadCount++
	c.mu.Unlock()
	return core.SuccessResponse(batch), nil
}

func dataPointSelected(dp core.DataPoint, req core.ReadRequest) bool {
	if req.DataType != nil && *req.DataType != dp.DataType {
		return false
	}
	if req.PointIDs != nil {
		for _, id := range req.PointIDs {
			if id == dp.ID {
				return true
			}
		}
		return false
	}
	return true
}

// WriteControl stores each command as a Control-typed DataPoint through the
// same write path as any other write, ignoring PulseMs: the hub has no
// physical output to hold and release.
func (c *Channel) WriteControl(ctx context.Context, commands []core.ControlCommand) (core.WriteResult, error) {
	count := 0
	for _, cmd := range commands {
		c.write(core.NewDataPoint(cmd.ID, core.Control, core.Bool(cmd.Value)))
		count++
	}
	return core.SuccessResult(count), nil
}

// WriteAdjustment stores each setpoint as an Adjustment-typed DataPoint.
func (c *Channel) WriteAdjustment(ctx context.Context, adjustments []core.AdjustmentCommand) (core.WriteResult, error) {
	count := 0
	for _, adj := range adjustments {
		c.write(core.NewDataPoint(adj.ID, core.Adjustment, core.Float(adj.Value)))
		count++
	}
	return core.SuccessResult(count), nil
}

// Write stores an arbitrary point (used by gateway-internal producers
// feeding the hub a Telemetry or Signal value directly, not just the
// Control/Adjustment paths WriteControl/WriteAdjustment expose).
func (c *Channel) Write(ctx context.Context, point core.DataPoint) error {
	c.write(point)
	return nil
}

// write is the single path every mutation goes through: cache, persist,
// count, broadcast.
func (c *Channel) write(dp core.DataPoint) {
	c.mu.Lock()
	c.cache[dp.ID] = dp
	c.diag.WriteCount++
	c.mu.Unlock()

	if c.db != nil {
		if err := c.persist(dp); err != nil {
			c.mu.Lock()
			c.diag.ErrorCount++
			c.diag.LastError = err.Error()
			c.mu.Unlock()
		}
	}

	var batch core.DataBatch
	batch.Add(dp)
	c.broadcaster.Publish(channel.DataUpdateEvent(c.id, batch))
}

func (c *Channel) persist(dp core.DataPoint) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(virtualBucket)
		key := []byte(fmt.Sprintf("%d", dp.ID))
		return b.Put(key, encodeDataPoint(dp))
	})
}

func (c *Channel) restoreFromDB() {
	c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(virtualBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			id, err := keyToID(k)
			if err != nil {
				return nil
			}
			dp, err := decodeDataPoint(v)
			if err != nil {
				return nil
			}
			dp.ID = id
			c.mu.Lock()
			c.cache[id] = dp
			c.mu.Unlock()
			return nil
		})
	})
}

func (c *Channel) Subscribe() (<-chan channel.Event, func(), bool) {
	ch, unsub := c.broadcaster.Subscribe()
	return ch, unsub, true
}

func (c *Channel) StartEvents(ctx context.Context) error { return nil }
func (c *Channel) StopEvents(ctx context.Context) error  { return nil }

func (c *Channel) Diagnostics(ctx context.Context) (core.Diagnostics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diag.ConnectionState = core.Connected
	return c.diag, nil
}
