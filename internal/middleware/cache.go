package middleware

import (
    "bytes"
    "context"
    "crypto/sha1"
    "encoding/binary"
    "encoding/json"
    "fmt"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/rs/zerolog"

    "github.com/iliyamo/igotyouboo-api/internal/config"
    "github.com/iliyamo/igotyouboo-api/internal/metrics"
)

// captureWriter captures response body/status while forwarding to the client.
type captureWriter struct {
    http.ResponseWriter
    status int
    buf    bytes.Buffer
    size   int64
    limit  int64
}

func (cw *captureWriter) WriteHeader(code int) { cw.status = code; cw.ResponseWriter.WriteHeader(code) }

func (cw *captureWriter) Write(b []byte) (int, error) {
    if cw.limit <= 0 || cw.size < cw.limit {
        remain := cw.limit - cw.size
        if cw.limit <= 0 || int64(len(b)) <= remain {
            cw.buf.Write(b)
        } else {
            cw.buf.Write(b[:remain])
        }
    }
    cw.size += int64(len(b))
    return cw.ResponseWriter.Write(b)
}

// ProfileCache is a Redis response cache for public profile lookups.
// Account handlers call Invalidate after an update or delete so the next
// lookup sees the change.
type ProfileCache struct {
    cfg config.CacheConfig
    rdb *redis.Client
}

func NewProfileCache(cfg config.CacheConfig, rdb *redis.Client) *ProfileCache {
    if cfg.TTL <= 0 {
        cfg.TTL = 30 * time.Second
    }
    return &ProfileCache{cfg: cfg, rdb: rdb}
}

func (pc *ProfileCache) enabled() bool { return pc != nil && pc.cfg.Enabled && pc.rdb != nil }

// key builds a stable cache key from the request path (and query when the
// strategy asks for it).  The raw path is used, not the route template, so
// each profile gets its own entry.
func (pc *ProfileCache) key(path, query string) string {
    tail := "path:" + path
    if strings.EqualFold(pc.cfg.KeyStrategy, "path_query") {
        tail += ":q:" + query
    }
    sum := sha1.Sum([]byte(tail))
    return fmt.Sprintf("%s:%x", pc.cfg.Prefix, sum[:])
}

// Invalidate drops every cached entry for path.  Only the query-less entry
// can be computed, which covers every key under the default strategy.
func (pc *ProfileCache) Invalidate(ctx context.Context, path string) {
    if !pc.enabled() {
        return
    }
    if err := pc.rdb.Del(ctx, pc.key(path, "")).Err(); err != nil {
        zerolog.Ctx(ctx).Warn().Err(err).Str("path", path).Msg("cache: invalidate failed")
    }
}

// Step returns the cache as a chain step.
func (pc *ProfileCache) Step() Step { return Plain("profile-cache", pc.Middleware()) }

// Middleware stores status, headers and body so clients see identical
// responses on a hit.  Only 200 responses are cached.
func (pc *ProfileCache) Middleware() echo.MiddlewareFunc {
    if !pc.enabled() {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    maxBody := int64(pc.cfg.MaxBodyBytes)

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            r := c.Request()
            if !pc.cfg.Methods[strings.ToUpper(r.Method)] {
                return next(c)
            }
            ctx := r.Context()
            key := pc.key(r.URL.Path, r.URL.RawQuery)

            if bs, err := pc.rdb.Get(ctx, key).Bytes(); err == nil {
                if status, hdr, body, ok := decodePayload(bs); ok {
                    for k, vals := range hdr {
                        if strings.EqualFold(k, "Content-Length") || strings.EqualFold(k, "Set-Cookie") {
                            continue
                        }
                        for _, v := range vals {
                            c.Response().Header().Add(k, v)
                        }
                    }
                    metrics.CacheHits.WithLabelValues("profile").Inc()
                    c.Response().Header().Set("X-Cache", "HIT")
                    c.Response().WriteHeader(status)
                    if len(body) > 0 {
                        _, _ = c.Response().Write(body)
                    }
                    return nil
                }
            }
            metrics.CacheMisses.WithLabelValues("profile").Inc()

            cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
            c.Response().Writer = cw
            c.Response().Header().Set("X-Cache", "MISS")

            if err := next(c); err != nil {
                return err
            }
            // A truncated body must not be served later.
            if cw.status != http.StatusOK || (maxBody > 0 && cw.size > maxBody) {
                return nil
            }

            hdr := c.Response().Header().Clone()
            hdr.Del("X-Cache")
            hdr.Del(RequestIDHeader)
            payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes())
            if err != nil {
                return nil
            }
            if err := pc.rdb.SetEx(context.WithoutCancel(ctx), key, payload, pc.cfg.TTL).Err(); err != nil {
                zerolog.Ctx(ctx).Warn().Err(err).Msg("cache: store failed")
            }
            return nil
        }
    }
}

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
    hdrJSON, err := json.Marshal(header)
    if err != nil {
        return nil, err
    }
    out := make([]byte, 8+len(hdrJSON)+len(body))
    binary.BigEndian.PutUint32(out[0:4], uint32(status))
    binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
    copy(out[8:8+len(hdrJSON)], hdrJSON)
    copy(out[8+len(hdrJSON):], body)
    return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
    if len(bs) < 8 {
        return 0, nil, nil, false
    }
    status = int(binary.BigEndian.Uint32(bs[0:4]))
    hlen := int(binary.BigEndian.Uint32(bs[4:8]))
    if hlen < 0 || 8+hlen > len(bs) {
        return 0, nil, nil, false
    }
    header = make(http.Header)
    if hlen > 0 {
        if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
            return 0, nil, nil, false
        }
    }
    return status, header, bs[8+hlen:], true
}
