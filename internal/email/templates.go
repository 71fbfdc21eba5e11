package email

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// TemplateSource entrega el HTML crudo de un template por nombre.
// Un template inexistente devuelve ErrTemplateNotFound, nunca un body vacío.
type TemplateSource interface {
	Load(ctx context.Context, name string) (string, error)
}

//go:embed themes/*.html
var themes embed.FS

const utf8BOM = "\xef\xbb\xbf"

type fsSource struct {
	fsys fs.FS
}

// NewFSSource lee templates desde un fs.FS.
func NewFSSource(fsys fs.FS) TemplateSource {
	return &fsSource{fsys: fsys}
}

// DirSource lee templates desde un directorio del disco.
func DirSource(dir string) TemplateSource {
	return NewFSSource(os.DirFS(dir))
}

// EmbeddedSource sirve los themes que vienen compilados en el binario.
func EmbeddedSource() TemplateSource {
	sub, err := fs.Sub(themes, "themes")
	if err != nil {
		// "themes" es un literal válido; fs.Sub sólo falla con paths inválidos
		panic(err)
	}
	return NewFSSource(sub)
}

func (s *fsSource) Load(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
		}
		return "", fmt.Errorf("read template %s: %w", name, err)
	}
	return strings.TrimPrefix(string(b), utf8BOM), nil
}

// CachedSource cachea los bodies de otro TemplateSource por ttl.
// Cargas concurrentes del mismo nombre se colapsan en una sola lectura.
// Los errores no se cachean.
type CachedSource struct {
	next  TemplateSource
	cache *gocache.Cache
	group singleflight.Group
}

// NewCachedSource envuelve next. ttl <= 0 significa sin expiración.
func NewCachedSource(next TemplateSource, ttl time.Duration) *CachedSource {
	exp := ttl
	if exp <= 0 {
		exp = gocache.NoExpiration
	}
	return &CachedSource{
		next:  next,
		cache: gocache.New(exp, time.Minute),
	}
}

func (c *CachedSource) Load(ctx context.Context, name string) (string, error) {
	if v, ok := c.cache.Get(name); ok {
		return v.(string), nil
	}
	v, err, _ := c.group.Do(name, func() (any, error) {
		body, err := c.next.Load(ctx, name)
		if err != nil {
			return nil, err
		}
		c.cache.SetDefault(name, body)
		return body, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate descarta un template del cache (ej: tras editarlo en disco).
func (c *CachedSource) Invalidate(name string) {
	c.cache.Delete(name)
}

// Flush descarta todo el cache.
func (c *CachedSource) Flush() {
	c.cache.Flush()
}
