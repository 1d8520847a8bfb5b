package main

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/egm722/geomap-cli/internal/crs"
	"github.com/egm722/geomap-cli/internal/vector"
)

// defaultCRS is assumed for shapefiles shipped without a .prj.
var defaultCRS = crs.UTM(29, true)

// loadLayers reads the named shapefiles concurrently. When dst is non-zero
// every layer is reprojected to it.
func loadLayers(ctx context.Context, paths map[string]string, dst crs.CRS) (map[string]*vector.Layer, error) {
	var (
		mu     sync.Mutex
		layers = make(map[string]*vector.Layer, len(paths))
	)
	g, gctx := errgroup.WithContext(ctx)
	for name, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			l, err := readLayer(path, dst)
			if err != nil {
				return eris.Wrapf(err, "load %s", name)
			}
			mu.Lock()
			layers[name] = l
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return layers, nil
}

func readLayer(path string, dst crs.CRS) (*vector.Layer, error) {
	l, err := vector.ReadShapefile(path)
	if err != nil {
		return nil, err
	}
	if l.CRS.IsZero() {
		zap.L().Warn("no CRS for layer, assuming UTM zone 29N",
			zap.String("path", path),
		)
		l.CRS = defaultCRS
	}
	if dst.IsZero() || l.CRS.Equal(dst) {
		return l, nil
	}
	return l.ToCRS(dst)
}

// parseBands converts a one-based "r,g,b" list to zero-based band indices.
func parseBands(s string) ([3]int, error) {
	var out [3]int
	parts := splitAndTrim(s)
	if len(parts) != 3 {
		return out, eris.Errorf("bands: want three comma-separated values, got %q", s)
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return out, eris.Wrapf(err, "bands: parse %q", p)
		}
		if n < 1 {
			return out, eris.Errorf("bands: band numbers start at 1, got %d", n)
		}
		out[i] = n - 1
	}
	return out, nil
}

// splitAndTrim splits a comma-separated string and trims whitespace from
// each element, dropping empty entries.
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			result = append(result, t)
		}
	}
	return result
}

// openPool connects to PostgreSQL and verifies the connection.
func openPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, eris.New("postgis: no database URL (set export.database_url or GEOMAP_EXPORT_DATABASE_URL)")
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, eris.Wrap(err, "postgis: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgis: ping")
	}
	return pool, nil
}
