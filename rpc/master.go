package rpc

import (
	"sync"
	"time"

	"github.com/juju/errors"
	"golang.org/x/net/context"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"

	"github.com/tabletstore/client-go/model/pkg/mspb"
	"github.com/tabletstore/client-go/util/log"
)

// MsClient sends RPCs to the master service.
// It should not be used after calling Close().
type MsClient interface {
	// Close should release all connections.
	Close() error
	CreateTable(req *mspb.CreateTableRequest, timeout time.Duration) (*mspb.CreateTableResponse, error)
	IsCreateTableDone(req *mspb.IsCreateTableDoneRequest, timeout time.Duration) (*mspb.IsCreateTableDoneResponse, error)
	DeleteTable(req *mspb.DeleteTableRequest, timeout time.Duration) (*mspb.DeleteTableResponse, error)
	IsDeleteTableDone(req *mspb.IsDeleteTableDoneRequest, timeout time.Duration) (*mspb.IsDeleteTableDoneResponse, error)
	AlterTable(req *mspb.AlterTableRequest, timeout time.Duration) (*mspb.AlterTableResponse, error)
	IsAlterTableDone(req *mspb.IsAlterTableDoneRequest, timeout time.Duration) (*mspb.IsAlterTableDoneResponse, error)
	GetTableSchema(req *mspb.GetTableSchemaRequest, timeout time.Duration) (*mspb.GetTableSchemaResponse, error)
	GetTableLocations(req *mspb.GetTableLocationsRequest, timeout time.Duration) (*mspb.GetTableLocationsResponse, error)
}

type MsRpcClient struct {
	lock  sync.RWMutex
	addrs []string
	// preferred is the index of the address that served the last
	// successful call. Tried first, rotated on connection failure.
	preferred int
	pool      map[string]*Conn
}

func NewMsClient(addrs []string) (MsClient, error) {
	if len(addrs) == 0 {
		return nil, errors.New("no master addresses")
	}
	return &MsRpcClient{
		addrs: append([]string(nil), addrs...),
		pool:  make(map[string]*Conn),
	}, nil
}

func (c *MsRpcClient) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	for _, conn := range c.pool {
		conn.Close()
	}
	c.pool = make(map[string]*Conn)
	return nil
}

func (c *MsRpcClient) CreateTable(req *mspb.CreateTableRequest, timeout time.Duration) (*mspb.CreateTableResponse, error) {
	resp := new(mspb.CreateTableResponse)
	if err := c.invoke("/mspb.Master/CreateTable", req, resp, timeout); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *MsRpcClient) IsCreateTableDone(req *mspb.IsCreateTableDoneRequest, timeout time.Duration) (*mspb.IsCreateTableDoneResponse, error) {
	resp := new(mspb.IsCreateTableDoneResponse)
	if err := c.invoke("/mspb.Master/IsCreateTableDone", req, resp, timeout); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *MsRpcClient) DeleteTable(req *mspb.DeleteTableRequest, timeout time.Duration) (*mspb.DeleteTableResponse, error) {
	resp := new(mspb.DeleteTableResponse)
	if err := c.invoke("/mspb.Master/DeleteTable", req, resp, timeout); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *MsRpcClient) IsDeleteTableDone(req *mspb.IsDeleteTableDoneRequest, timeout time.Duration) (*mspb.IsDeleteTableDoneResponse, error) {
	resp := new(mspb.IsDeleteTableDoneResponse)
	if err := c.invoke("/mspb.Master/IsDeleteTableDone", req, resp, timeout); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *MsRpcClient) AlterTable(req *mspb.AlterTableRequest, timeout time.Duration) (*mspb.AlterTableResponse, error) {
	resp := new(mspb.AlterTableResponse)
	if err := c.invoke("/mspb.Master/AlterTable", req, resp, timeout); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *MsRpcClient) IsAlterTableDone(req *mspb.IsAlterTableDoneRequest, timeout time.Duration) (*mspb.IsAlterTableDoneResponse, error) {
	resp := new(mspb.IsAlterTableDoneResponse)
	if err := c.invoke("/mspb.Master/IsAlterTableDone", req, resp, timeout); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *MsRpcClient) GetTableSchema(req *mspb.GetTableSchemaRequest, timeout time.Duration) (*mspb.GetTableSchemaResponse, error) {
	resp := new(mspb.GetTableSchemaResponse)
	if err := c.invoke("/mspb.Master/GetTableSchema", req, resp, timeout); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *MsRpcClient) GetTableLocations(req *mspb.GetTableLocationsRequest, timeout time.Duration) (*mspb.GetTableLocationsResponse, error) {
	resp := new(mspb.GetTableLocationsResponse)
	if err := c.invoke("/mspb.Master/GetTableLocations", req, resp, timeout); err != nil {
		return nil, err
	}
	return resp, nil
}

// invoke tries the preferred master first and rotates through the
// remaining addresses on connection failure.
func (c *MsRpcClient) invoke(method string, req, resp interface{}, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	c.lock.RLock()
	start := c.preferred
	n := len(c.addrs)
	c.lock.RUnlock()

	var lastErr error
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		addr := c.addrs[idx]
		conn, err := c.getConn(addr)
		if err != nil {
			lastErr = err
			continue
		}
		if err = conn.Invoke(ctx, method, req, resp); err != nil {
			if grpc.Code(err) == codes.Unavailable {
				log.Warn("master[%s] unavailable, try next", addr)
				lastErr = ErrConnUnavailable
				continue
			}
			return errors.New(grpc.ErrorDesc(err))
		}
		if idx != start {
			c.lock.Lock()
			c.preferred = idx
			c.lock.Unlock()
		}
		return nil
	}
	if lastErr == nil {
		lastErr = ErrConnUnavailable
	}
	return lastErr
}

func (c *MsRpcClient) getConn(addr string) (*Conn, error) {
	c.lock.RLock()
	if conn, ok := c.pool[addr]; ok {
		c.lock.RUnlock()
		return conn, nil
	}
	c.lock.RUnlock()
	c.lock.Lock()
	defer c.lock.Unlock()
	if conn, ok := c.pool[addr]; ok {
		return conn, nil
	}
	conn, err := dialConn(addr, DefaultInitialWindowSize)
	if err != nil {
		log.Error("did not connect master addr[%s], err[%v]", addr, err)
		return nil, err
	}
	c.pool[addr] = conn
	return conn, nil
}
