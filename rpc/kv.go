package rpc

import (
	"sync"
	"time"

	"github.com/juju/errors"
	"golang.org/x/net/context"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"

	"github.com/tabletstore/client-go/model/pkg/kvrpcpb"
	"github.com/tabletstore/client-go/util/log"
)

var (
	// ErrConnUnavailable indicates that the connection is unavailable.
	ErrConnUnavailable = errors.New("grpc: the connection is unavailable")
)

// KvClient sends RPCs to tablet servers.
// It should not be used after calling Close().
type KvClient interface {
	// Close should release all connections.
	Close() error
	// Dial ensures a connection to addr exists, establishing it when
	// absent.
	Dial(addr string) error
	Batch(addr string, req *kvrpcpb.BatchRequest, writeTimeout, readTimeout time.Duration) (*kvrpcpb.BatchResponse, error)
	Scan(addr string, req *kvrpcpb.ScanRequest, writeTimeout, readTimeout time.Duration) (*kvrpcpb.ScanResponse, error)
}

type KvRpcClient struct {
	lock     sync.RWMutex
	poolSize int
	winSize  int32
	set      map[string]*Pool
}

func NewKvClient(opts ...int) KvClient {
	var size int
	if len(opts) == 0 {
		size = DefaultPoolSize
	} else if len(opts) > 1 {
		log.Fatal("invalid client param!!!")
		return nil
	} else {
		size = opts[0]
		if size == 0 {
			log.Fatal("invalid client param!!!")
			return nil
		}
	}
	set := make(map[string]*Pool)
	return &KvRpcClient{poolSize: size, winSize: DefaultInitialWindowSize, set: set}
}

func (c *KvRpcClient) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	for _, pool := range c.set {
		pool.Close()
	}
	c.set = make(map[string]*Pool)
	return nil
}

func (c *KvRpcClient) Dial(addr string) error {
	_, err := c.getConn(addr)
	return err
}

func (c *KvRpcClient) Batch(addr string, req *kvrpcpb.BatchRequest, writeTimeout, readTimeout time.Duration) (*kvrpcpb.BatchResponse, error) {
	conn, err := c.getConn(addr)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout+readTimeout)
	defer cancel()
	resp := new(kvrpcpb.BatchResponse)
	if err = conn.Invoke(ctx, "/kvrpcpb.TabletServer/Batch", req, resp); err != nil {
		if grpc.Code(err) == codes.Unavailable {
			return nil, ErrConnUnavailable
		}
		return nil, errors.New(grpc.ErrorDesc(err))
	}
	return resp, nil
}

func (c *KvRpcClient) Scan(addr string, req *kvrpcpb.ScanRequest, writeTimeout, readTimeout time.Duration) (*kvrpcpb.ScanResponse, error) {
	conn, err := c.getConn(addr)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout+readTimeout)
	defer cancel()
	resp := new(kvrpcpb.ScanResponse)
	if err = conn.Invoke(ctx, "/kvrpcpb.TabletServer/Scan", req, resp); err != nil {
		if grpc.Code(err) == codes.Unavailable {
			return nil, ErrConnUnavailable
		}
		return nil, errors.New(grpc.ErrorDesc(err))
	}
	return resp, nil
}

func (c *KvRpcClient) getConn(addr string) (*Conn, error) {
	if len(addr) == 0 {
		return nil, errors.New("invalid address")
	}
	var pool *Pool
	var ok bool
	var err error
	c.lock.RLock()
	if pool, ok = c.set[addr]; ok {
		c.lock.RUnlock()
		return pool.GetConn(), nil
	}
	c.lock.RUnlock()
	c.lock.Lock()
	defer c.lock.Unlock()
	if pool, ok = c.set[addr]; ok {
		return pool.GetConn(), nil
	}
	pool, err = NewPool(c.poolSize, addr, func(_addr string) (*Conn, error) {
		conn, _err := dialConn(_addr, c.winSize)
		if _err != nil {
			log.Error("did not connect addr[%s], err[%v]", _addr, _err)
			return nil, _err
		}
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	c.set[addr] = pool
	return pool.GetConn(), nil
}
