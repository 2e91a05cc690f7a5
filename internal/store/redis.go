package store

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RedisConfig captures the minimal connection parameters required by the lightweight Redis client.
type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      bool
	Timeout  time.Duration
}

const defaultRedisTimeout = 5 * time.Second
const redisKeyPrefix = "feedsync:"

// RedisStore implements Store over a small subset of the Redis protocol:
// AUTH, SELECT, GET, SET, DEL, EXISTS, RPUSH, LREM and LRANGE. Record bodies
// live under per-key strings; a per-collection list preserves insertion
// order for ListAll. The implementation maintains a single connection
// guarded by a mutex, which matches the agent's single-writer cache usage.
type RedisStore struct {
	cfg    RedisConfig
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// NewRedisStore creates a Redis-backed Store. It eagerly establishes the
// connection so that misconfiguration is surfaced during agent startup.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, errors.New("store: redis address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRedisTimeout
	}

	client := &RedisStore{cfg: cfg}
	if err := client.ensureConnection(context.Background()); err != nil {
		return nil, err
	}
	return client, nil
}

// Close closes the underlying network connection.
func (c *RedisStore) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		c.reader = nil
		return err
	}
	return nil
}

// Ping verifies the connection with a PING round trip.
func (c *RedisStore) Ping(ctx context.Context) error {
	reply, err := c.doSimple(ctx, "PING")
	if err != nil {
		return err
	}
	if !strings.EqualFold(reply, "PONG") {
		return fmt.Errorf("store: unexpected ping reply %q", reply)
	}
	return nil
}

// Get retrieves a record body by collection and key.
func (c *RedisStore) Get(ctx context.Context, collection, key string) ([]byte, bool, error) {
	resp, err := c.do(ctx, "GET", c.recordKey(collection, key))
	if err != nil {
		return nil, false, err
	}

	switch v := resp.(type) {
	case nil:
		return nil, false, nil
	case []byte:
		return v, true, nil
	default:
		return nil, false, fmt.Errorf("store: unexpected redis response type %T", v)
	}
}

// Put stores a record body, appending the key to the collection's order list
// on first insert only so overwrites keep their original position.
func (c *RedisStore) Put(ctx context.Context, collection, key string, body []byte) error {
	recordKey := c.recordKey(collection, key)

	existed, err := c.doInt(ctx, "EXISTS", recordKey)
	if err != nil {
		return err
	}

	if _, err := c.doSimple(ctx, "SET", recordKey, string(body)); err != nil {
		return err
	}

	if existed == 0 {
		if _, err := c.doInt(ctx, "RPUSH", c.orderKey(collection), key); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a record and its order entry, ignoring missing keys.
func (c *RedisStore) Delete(ctx context.Context, collection, key string) error {
	if _, err := c.doInt(ctx, "DEL", c.recordKey(collection, key)); err != nil {
		return err
	}
	_, err := c.doInt(ctx, "LREM", c.orderKey(collection), "0", key)
	return err
}

// ClearAll removes every record in a collection along with its order list.
func (c *RedisStore) ClearAll(ctx context.Context, collection string) error {
	keys, err := c.listKeys(ctx, collection)
	if err != nil {
		return err
	}

	args := []string{"DEL", c.orderKey(collection)}
	for _, key := range keys {
		args = append(args, c.recordKey(collection, key))
	}
	_, err = c.do(ctx, args...)
	return err
}

// ListAll returns all record bodies for a collection in insertion order.
// Order entries whose record has vanished are skipped.
func (c *RedisStore) ListAll(ctx context.Context, collection string) ([][]byte, error) {
	keys, err := c.listKeys(ctx, collection)
	if err != nil {
		return nil, err
	}

	bodies := make([][]byte, 0, len(keys))
	for _, key := range keys {
		body, ok, err := c.Get(ctx, collection, key)
		if err != nil {
			return nil, err
		}
		if ok {
			bodies = append(bodies, body)
		}
	}
	return bodies, nil
}

func (c *RedisStore) listKeys(ctx context.Context, collection string) ([]string, error) {
	resp, err := c.do(ctx, "LRANGE", c.orderKey(collection), "0", "-1")
	if err != nil {
		return nil, err
	}

	items, ok := resp.([]interface{})
	if !ok {
		if resp == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("store: unexpected redis list response %T", resp)
	}

	keys := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case []byte:
			keys = append(keys, string(v))
		case string:
			keys = append(keys, v)
		default:
			return nil, fmt.Errorf("store: unexpected redis list element %T", item)
		}
	}
	return keys, nil
}

func (c *RedisStore) recordKey(collection, key string) string {
	return normalizeKey(redisKeyPrefix + collection + ":rec:" + key)
}

func (c *RedisStore) orderKey(collection string) string {
	return normalizeKey(redisKeyPrefix + collection + ":order")
}

func (c *RedisStore) doSimple(ctx context.Context, command string, args ...string) (string, error) {
	resp, err := c.do(ctx, append([]string{command}, args...)...)
	if err != nil {
		return "", err
	}
	switch v := resp.(type) {
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("store: unexpected redis simple response %T", v)
	}
}

func (c *RedisStore) doInt(ctx context.Context, command string, args ...string) (int64, error) {
	resp, err := c.do(ctx, append([]string{command}, args...)...)
	if err != nil {
		return 0, err
	}
	switch v := resp.(type) {
	case int64:
		return v, nil
	case string:
		i, convErr := strconv.ParseInt(v, 10, 64)
		if convErr != nil {
			return 0, convErr
		}
		return i, nil
	default:
		return 0, fmt.Errorf("store: unexpected redis integer response %T", v)
	}
}

func (c *RedisStore) do(ctx context.Context, args ...string) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnectionLocked(ctx); err != nil {
		return nil, err
	}

	deadline := deadlineFromContext(ctx, c.cfg.Timeout)
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.resetLocked()
		return nil, err
	}

	if err := writeCommand(c.conn, args); err != nil {
		c.resetLocked()
		return nil, err
	}

	resp, err := readResponse(c.reader)
	if err != nil {
		c.resetLocked()
		return nil, err
	}

	return resp, nil
}

func (c *RedisStore) ensureConnection(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ensureConnectionLocked(ctx)
}

func (c *RedisStore) ensureConnectionLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var (
		conn net.Conn
		err  error
	)

	if c.cfg.TLS {
		dialer := &tls.Dialer{NetDialer: &net.Dialer{}}
		conn, err = dialer.DialContext(ctx, "tcp", c.cfg.Address)
	} else {
		dialer := &net.Dialer{}
		conn, err = dialer.DialContext(ctx, "tcp", c.cfg.Address)
	}
	if err != nil {
		return err
	}

	reader := bufio.NewReader(conn)
	deadline := deadlineFromContext(ctx, c.cfg.Timeout)
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return err
	}

	if c.cfg.Password != "" || c.cfg.Username != "" {
		authArgs := []string{"AUTH"}
		if c.cfg.Username != "" {
			authArgs = append(authArgs, c.cfg.Username, c.cfg.Password)
		} else {
			authArgs = append(authArgs, c.cfg.Password)
		}
		if err := writeCommand(conn, authArgs); err != nil {
			conn.Close()
			return err
		}
		if resp, err := readResponse(reader); err != nil {
			conn.Close()
			return err
		} else if str, ok := resp.(string); !ok || !strings.EqualFold(str, "OK") {
			conn.Close()
			return fmt.Errorf("store: redis AUTH failed: %v", resp)
		}
	}

	if c.cfg.DB > 0 {
		if err := writeCommand(conn, []string{"SELECT", strconv.Itoa(c.cfg.DB)}); err != nil {
			conn.Close()
			return err
		}
		if resp, err := readResponse(reader); err != nil {
			conn.Close()
			return err
		} else if str, ok := resp.(string); !ok || !strings.EqualFold(str, "OK") {
			conn.Close()
			return fmt.Errorf("store: redis SELECT failed: %v", resp)
		}
	}

	// Clear deadlines; runtime commands will set per-call deadlines
	if err := conn.SetDeadline(time.Time{}); err != nil {
		conn.Close()
		return err
	}

	c.conn = conn
	c.reader = reader
	return nil
}

func (c *RedisStore) resetLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.reader = nil
}

func deadlineFromContext(ctx context.Context, fallback time.Duration) time.Time {
	if deadline, ok := ctx.Deadline(); ok {
		return deadline
	}
	return time.Now().Add(fallback)
}

func writeCommand(conn net.Conn, args []string) error {
	builder := strings.Builder{}
	builder.Grow(1 + len(args)*4) // rough estimate
	builder.WriteByte('*')
	builder.WriteString(strconv.Itoa(len(args)))
	builder.WriteString("\r\n")
	for _, arg := range args {
		builder.WriteByte('$')
		builder.WriteString(strconv.Itoa(len(arg)))
		builder.WriteString("\r\n")
		builder.WriteString(arg)
		builder.WriteString("\r\n")
	}
	_, err := conn.Write([]byte(builder.String()))
	return err
}

func readResponse(r *bufio.Reader) (interface{}, error) {
	prefix, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	switch prefix {
	case '+':
		line, err := readLine(r)
		if err != nil {
			return nil, err
		}
		return line, nil
	case '-':
		line, err := readLine(r)
		if err != nil {
			return nil, err
		}
		return nil, errors.New(line)
	case ':':
		line, err := readLine(r)
		if err != nil {
			return nil, err
		}
		n, convErr := strconv.ParseInt(line, 10, 64)
		if convErr != nil {
			return nil, convErr
		}
		return n, nil
	case '$':
		line, err := readLine(r)
		if err != nil {
			return nil, err
		}
		length, convErr := strconv.Atoi(line)
		if convErr != nil {
			return nil, convErr
		}
		if length == -1 {
			return nil, nil
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		if err := consumeCRLF(r); err != nil {
			return nil, err
		}
		return buf, nil
	case '*':
		line, err := readLine(r)
		if err != nil {
			return nil, err
		}
		count, convErr := strconv.Atoi(line)
		if convErr != nil {
			return nil, convErr
		}
		if count == -1 {
			return nil, nil
		}
		items := make([]interface{}, count)
		for i := 0; i < count; i++ {
			item, err := readResponse(r)
			if err != nil {
				return nil, err
			}
			items[i] = item
		}
		return items, nil
	default:
		return nil, fmt.Errorf("store: unexpected redis prefix %q", prefix)
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

func consumeCRLF(r *bufio.Reader) error {
	first, err := r.ReadByte()
	if err != nil {
		return err
	}
	second, err := r.ReadByte()
	if err != nil {
		return err
	}
	if first != '\r' || second != '\n' {
		return errors.New("store: expected CRLF")
	}
	return nil
}

func normalizeKey(key string) string {
	if key == "" {
		return key
	}
	var builder strings.Builder
	builder.Grow(len(key))
	prevColon := false
	for i := 0; i < len(key); i++ {
		ch := key[i]
		if ch == ':' {
			if prevColon {
				continue
			}
			prevColon = true
		} else {
			prevColon = false
		}
		builder.WriteByte(ch)
	}
	return builder.String()
}
