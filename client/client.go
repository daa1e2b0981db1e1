// Package client implements the client runtime of the tablet store:
// table administration, the tablet location cache, the write-batching
// session engine and the scan cursor protocol.
package client

import (
	"sync"
	"time"

	"github.com/juju/errors"
	"golang.org/x/net/context"

	"github.com/tabletstore/client-go/model/pkg/metapb"
	"github.com/tabletstore/client-go/model/pkg/mspb"
	"github.com/tabletstore/client-go/rpc"
	"github.com/tabletstore/client-go/util/log"
	"github.com/tabletstore/client-go/util/ttlcache"
)

type Config struct {
	MasterAddrs []string

	GrpcPoolSize    int
	MaxWorkNum      int
	MaxTaskQueueLen int

	// AdminTimeout bounds one master round trip.
	AdminTimeout time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration

	// Deadlines for the poll-until-done admin operations.
	CreateTableTimeout time.Duration
	AlterTableTimeout  time.Duration
	DeleteTableTimeout time.Duration

	ErrorCollectorCap int
	TableMissTTL      time.Duration
}

func (c *Config) adjust() {
	if c.GrpcPoolSize <= 0 {
		c.GrpcPoolSize = rpc.DefaultPoolSize
	}
	if c.MaxWorkNum <= 0 {
		c.MaxWorkNum = 8
	}
	if c.MaxTaskQueueLen <= 0 {
		c.MaxTaskQueueLen = 1024
	}
	if c.AdminTimeout <= 0 {
		c.AdminTimeout = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 20 * time.Second
	}
	if c.CreateTableTimeout <= 0 {
		c.CreateTableTimeout = 15 * time.Second
	}
	if c.AlterTableTimeout <= 0 {
		c.AlterTableTimeout = 60 * time.Second
	}
	if c.DeleteTableTimeout <= 0 {
		c.DeleteTableTimeout = 15 * time.Second
	}
	if c.ErrorCollectorCap <= 0 {
		c.ErrorCollectorCap = defaultErrorCollectorCap
	}
	if c.TableMissTTL <= 0 {
		c.TableMissTTL = 10 * time.Second
	}
}

// Client talks to one cluster. It owns the rpc clients, the location
// cache, the worker pool and every open table handle.
type Client struct {
	config    *Config
	msCli     rpc.MsClient
	kvCli     rpc.KvClient
	metaCache *MetaCache

	// negative cache of table names recently reported missing
	missTables *ttlcache.TTLCache

	lock   sync.Mutex
	tables map[string]*openTable

	taskQueues  []chan Task
	workRecover chan int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

type openTable struct {
	table *Table
	refs  int
}

func NewClient(config *Config) (*Client, error) {
	if config == nil || len(config.MasterAddrs) == 0 {
		return nil, errors.BadRequestf("no master addresses")
	}
	msCli, err := rpc.NewMsClient(config.MasterAddrs)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return NewClientWith(msCli, rpc.NewKvClient(config.GrpcPoolSize), config), nil
}

// NewClientWith builds a client over caller-supplied rpc clients.
func NewClientWith(msCli rpc.MsClient, kvCli rpc.KvClient, config *Config) *Client {
	if config == nil {
		config = &Config{}
	}
	config.adjust()
	var taskQueues []chan Task
	for i := 0; i < config.MaxWorkNum; i++ {
		taskQueues = append(taskQueues, make(chan Task, config.MaxTaskQueueLen))
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config:      config,
		msCli:       msCli,
		kvCli:       kvCli,
		metaCache:   NewMetaCache(msCli, config.AdminTimeout),
		missTables:  ttlcache.NewTTLCache(config.TableMissTTL),
		tables:      make(map[string]*openTable),
		taskQueues:  taskQueues,
		workRecover: make(chan int, config.MaxWorkNum),
		ctx:         ctx,
		cancel:      cancel,
	}
	for i, queue := range taskQueues {
		c.wg.Add(1)
		go c.work(i, queue)
	}
	c.wg.Add(1)
	go c.workMonitor()
	return c
}

func (c *Client) Close() {
	c.cancel()
	c.wg.Wait()
	c.kvCli.Close()
	c.msCli.Close()
}

// CreateTable creates a table from the given schema. Unless opts skips
// it, the call waits until the master reports every tablet assigned.
func (c *Client) CreateTable(name string, columns []*metapb.Column, opts *CreateTableOptions) error {
	if opts == nil {
		opts = &CreateTableOptions{}
	}
	if err := validateSchema(name, columns); err != nil {
		return err
	}
	if err := validateSplitKeys(opts.SplitKeys); err != nil {
		return err
	}
	resp, err := c.msCli.CreateTable(&mspb.CreateTableRequest{
		Name:      name,
		Columns:   columns,
		SplitKeys: opts.SplitKeys,
	}, c.config.AdminTimeout)
	if err != nil {
		return errors.Annotatef(err, "create table %s", name)
	}
	if err = masterErr(resp.GetHeader()); err != nil {
		return err
	}
	c.missTables.Delete(name)
	if opts.SkipWaitAssignment {
		return nil
	}
	deadline := time.Now().Add(c.config.CreateTableTimeout)
	return RetryFunc(deadline,
		"waiting for table "+name+" to be created",
		"timed out waiting for table "+name+" to be created",
		func(time.Time) (bool, error) {
			resp, err := c.msCli.IsCreateTableDone(&mspb.IsCreateTableDoneRequest{Name: name}, c.config.AdminTimeout)
			if err != nil {
				return false, errors.Trace(err)
			}
			if err = masterErr(resp.GetHeader()); err != nil {
				return false, err
			}
			return !resp.GetDone(), nil
		})
}

// DeleteTable deletes a table and waits until its tablets are dropped.
func (c *Client) DeleteTable(name string) error {
	resp, err := c.msCli.DeleteTable(&mspb.DeleteTableRequest{Name: name}, c.config.AdminTimeout)
	if err != nil {
		return errors.Annotatef(err, "delete table %s", name)
	}
	if err = masterErr(resp.GetHeader()); err != nil {
		return err
	}
	c.metaCache.EvictTable(name)
	deadline := time.Now().Add(c.config.DeleteTableTimeout)
	return RetryFunc(deadline,
		"waiting for tablets of table "+name+" to be dropped",
		"timed out waiting for tablets of table "+name+" to be dropped",
		func(time.Time) (bool, error) {
			resp, err := c.msCli.IsDeleteTableDone(&mspb.IsDeleteTableDoneRequest{Name: name}, c.config.AdminTimeout)
			if err != nil {
				return false, errors.Trace(err)
			}
			if err = masterErr(resp.GetHeader()); err != nil {
				return false, err
			}
			return !resp.GetDone(), nil
		})
}

// AlterTable applies the accumulated schema changes and waits for the
// alteration to finish.
func (c *Client) AlterTable(name string, b *AlterTableBuilder) error {
	if b == nil || !b.hasChanges() {
		return errors.BadRequestf("alter table %s: no changes", name)
	}
	if b.err != nil {
		return b.err
	}
	resp, err := c.msCli.AlterTable(&mspb.AlterTableRequest{
		Name:    name,
		NewName: b.newName,
		Steps:   b.steps,
	}, c.config.AdminTimeout)
	if err != nil {
		return errors.Annotatef(err, "alter table %s", name)
	}
	if err = masterErr(resp.GetHeader()); err != nil {
		return err
	}
	// poll under the new name when the table was renamed
	polled := name
	if b.newName != "" {
		polled = b.newName
		c.metaCache.EvictTable(name)
	}
	deadline := time.Now().Add(c.config.AlterTableTimeout)
	return RetryFunc(deadline,
		"waiting for table "+polled+" to be altered",
		"timed out waiting for table "+polled+" to be altered",
		func(time.Time) (bool, error) {
			resp, err := c.msCli.IsAlterTableDone(&mspb.IsAlterTableDoneRequest{Name: polled}, c.config.AdminTimeout)
			if err != nil {
				return false, errors.Trace(err)
			}
			if err = masterErr(resp.GetHeader()); err != nil {
				return false, err
			}
			return !resp.GetDone(), nil
		})
}

// GetTableSchema returns the table's schema with the server-assigned
// column ids stripped.
func (c *Client) GetTableSchema(name string) (*metapb.Table, error) {
	meta, err := c.fetchTableMeta(name)
	if err != nil {
		return nil, err
	}
	return stripColumnIds(meta), nil
}

// OpenTable resolves a reference-counted table handle, fetching the
// schema and prefetching the first locations on first open.
func (c *Client) OpenTable(name string) (*Table, error) {
	if _, miss := c.missTables.Get(name); miss {
		return nil, errors.NotFoundf("table %s", name)
	}

	c.lock.Lock()
	if ot, ok := c.tables[name]; ok {
		ot.refs++
		c.lock.Unlock()
		return ot.table, nil
	}
	c.lock.Unlock()

	meta, err := c.fetchTableMeta(name)
	if err != nil {
		if errors.IsNotFound(err) {
			c.missTables.Put(name, true)
		}
		return nil, err
	}

	c.lock.Lock()
	if ot, ok := c.tables[name]; ok {
		ot.refs++
		c.lock.Unlock()
		return ot.table, nil
	}
	t := newTable(c, meta)
	c.tables[name] = &openTable{table: t, refs: 1}
	c.lock.Unlock()

	// best-effort location warmup
	if _, err := c.metaCache.LookupTabletByKey(name, metapb.NegativeInfinityKey); err != nil {
		log.Warn("prefetch locations of table %s failed: %v", name, err)
	}
	return t, nil
}

func (c *Client) releaseTable(name string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	ot, ok := c.tables[name]
	if !ok {
		return
	}
	ot.refs--
	if ot.refs <= 0 {
		delete(c.tables, name)
	}
}

// NewSession opens a write session. The default mode flushes each
// applied mutation synchronously.
func (c *Client) NewSession() *Session {
	return newSession(c)
}

// MetaCache exposes the location cache, mainly for tests and tooling.
func (c *Client) MetaCache() *MetaCache {
	return c.metaCache
}

func (c *Client) fetchTableMeta(name string) (*metapb.Table, error) {
	resp, err := c.msCli.GetTableSchema(&mspb.GetTableSchemaRequest{Name: name}, c.config.AdminTimeout)
	if err != nil {
		return nil, errors.Annotatef(err, "get schema of table %s", name)
	}
	if err = masterErr(resp.GetHeader()); err != nil {
		return nil, err
	}
	if resp.GetTable() == nil {
		return nil, errors.NotFoundf("table %s", name)
	}
	return resp.GetTable(), nil
}

func validateSchema(name string, columns []*metapb.Column) error {
	if name == "" {
		return errors.BadRequestf("table name is empty")
	}
	if len(columns) == 0 {
		return errors.BadRequestf("table %s has no columns", name)
	}
	seen := make(map[string]bool)
	havePK := false
	for _, col := range columns {
		if col.GetName() == "" {
			return errors.BadRequestf("table %s has a column with an empty name", name)
		}
		if !col.GetDataType().Valid() {
			return errors.BadRequestf("column %s has invalid type %d", col.GetName(), col.GetDataType())
		}
		if seen[col.GetName()] {
			return errors.BadRequestf("duplicate column %s", col.GetName())
		}
		seen[col.GetName()] = true
		if col.GetPrimaryKey() > 0 {
			havePK = true
		}
	}
	if !havePK {
		return errors.BadRequestf("table %s has no primary key column", name)
	}
	return nil
}

func validateSplitKeys(keys [][]byte) error {
	seen := make(map[string]bool)
	for _, k := range keys {
		if len(k) == 0 {
			return errors.BadRequestf("empty split key")
		}
		if seen[string(k)] {
			return errors.BadRequestf("duplicate split key %q", k)
		}
		seen[string(k)] = true
	}
	return nil
}

// masterErr maps an application error embedded in a master response to
// the client error taxonomy. Unknown codes are rejected at this
// boundary.
func masterErr(h *mspb.ResponseHeader) error {
	e := h.GetError()
	if e == nil {
		return nil
	}
	if !e.GetCode().Valid() {
		return errors.BadRequestf("unknown master error code %d: %s", e.GetCode(), e.GetMessage())
	}
	switch e.GetCode() {
	case mspb.CodeOk:
		return nil
	case mspb.CodeInvalidArgument:
		return errors.BadRequestf("%s", e.GetMessage())
	case mspb.CodeTableNotFound, mspb.CodeTabletNotFound:
		return errors.NotFoundf("%s", e.GetMessage())
	case mspb.CodeTableExists:
		return errors.AlreadyExistsf("%s", e.GetMessage())
	case mspb.CodeServerBusy:
		return errors.New(e.GetMessage())
	}
	return errors.BadRequestf("unknown master error code %d", e.GetCode())
}
