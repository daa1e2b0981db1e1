package rpc

import (
	"time"

	"golang.org/x/net/context"
	"google.golang.org/grpc"

	"github.com/tabletstore/client-go/util"
)

const (
	dialTimeout = 5 * time.Second

	DefaultInitialWindowSize int32 = 64 * util.KB
	DefaultPoolSize          int   = 1
)

type Conn struct {
	addr string
	conn *grpc.ClientConn

	closed bool
}

func dialConn(addr string, winSize int32) (*Conn, error) {
	gc, err := grpc.Dial(addr,
		grpc.WithInsecure(),
		grpc.WithTimeout(dialTimeout),
		grpc.WithInitialWindowSize(winSize),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})))
	if err != nil {
		return nil, err
	}
	return &Conn{addr: addr, conn: gc}, nil
}

func (c *Conn) Invoke(ctx context.Context, method string, req, resp interface{}) error {
	return c.conn.Invoke(ctx, method, req, resp)
}

func (c *Conn) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.conn.Close()
}

type createConnFunc func(addr string) (*Conn, error)

type Pool struct {
	size int64
	pool []*Conn
}

func NewPool(size int, addr string, fun createConnFunc) (*Pool, error) {
	var pool []*Conn
	for i := 0; i < size; i++ {
		conn, err := fun(addr)
		if err != nil {
			return nil, err
		}
		pool = append(pool, conn)
	}
	return &Pool{size: int64(size), pool: pool}, nil
}

func (p *Pool) GetConn() *Conn {
	index := time.Now().UnixNano() % p.size
	return p.pool[index]
}

func (p *Pool) Close() {
	for _, c := range p.pool {
		c.Close()
	}
}
