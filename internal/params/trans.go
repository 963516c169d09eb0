package params

import (
	"context"
	"log/slog"
	"strings"

	"github.com/galaxyproject/galaxy-params/internal/model"
	"github.com/galaxyproject/galaxy-params/internal/security"
	"github.com/galaxyproject/galaxy-params/internal/validation"
)

// GenomeBuild is a known genome build.
type GenomeBuild struct {
	DBKey string `json:"dbkey" mapstructure:"dbkey" yaml:"dbkey"`
	Name  string `json:"name" mapstructure:"name" yaml:"name"`
}

// App carries the long lived collaborators parameters resolve values with.
type App struct {
	Security     security.IDEncoder
	Datastore    model.Datastore
	Datatypes    model.DatatypeRegistry
	DataTables   validation.DataTables
	GenomeBuilds []GenomeBuild
	Logger       *slog.Logger
}

func (a *App) logger() *slog.Logger {
	if a == nil || a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

func (a *App) validationEnv() validation.Env {
	if a == nil {
		return validation.Env{}
	}
	return validation.Env{DataTables: a.DataTables}
}

// Trans is the request scoped context a parameter is evaluated in.
type Trans struct {
	ctx context.Context

	App                  *App
	History              *model.History
	User                 *model.User
	WorkflowBuildingMode bool
	// BaseURL qualifies baseurl parameter values.
	BaseURL string
}

// NewTrans creates a request context.
func NewTrans(ctx context.Context, app *App) *Trans {
	return &Trans{ctx: ctx, App: app}
}

// Context returns the request context.
func (t *Trans) Context() context.Context {
	if t == nil || t.ctx == nil {
		return context.Background()
	}
	return t.ctx
}

func (t *Trans) app() *App {
	if t == nil {
		return nil
	}
	return t.App
}

func (t *Trans) workflowMode() bool {
	return t != nil && t.WorkflowBuildingMode
}

// UserRoles returns the roles of the current user.
func (t *Trans) UserRoles() []int64 {
	if t == nil || t.User == nil {
		return nil
	}
	return t.User.Roles
}

func (t *Trans) qualifiedURL(path string) string {
	if t == nil || t.BaseURL == "" {
		return path
	}
	return strings.TrimRight(t.BaseURL, "/") + path
}

// ExpressionContext is a chain of value dicts. Lookups fall through to the
// parent when a key is missing. A nil context is empty.
type ExpressionContext struct {
	dict   map[string]interface{}
	parent *ExpressionContext
}

// NewExpressionContext wraps dict, falling back to parent.
func NewExpressionContext(dict map[string]interface{}, parent *ExpressionContext) *ExpressionContext {
	return &ExpressionContext{dict: dict, parent: parent}
}

// Get looks a key up along the chain.
func (c *ExpressionContext) Get(key string) (interface{}, bool) {
	for cur := c; cur != nil; cur = cur.parent {
		if v, ok := cur.dict[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// Value returns the value for key, or nil.
func (c *ExpressionContext) Value(key string) interface{} {
	v, _ := c.Get(key)
	return v
}

// Values returns every value visible from c, nearest dict first.
func (c *ExpressionContext) Values() []interface{} {
	var out []interface{}
	for cur := c; cur != nil; cur = cur.parent {
		for _, v := range cur.dict {
			out = append(out, v)
		}
	}
	return out
}

// IsRuntimeContext reports whether values in other are not yet final: in
// workflow building mode, when a sibling is a runtime marker, or when a
// selected dataset is not ready.
func IsRuntimeContext(trans *Trans, other *ExpressionContext) bool {
	if trans.workflowMode() {
		return true
	}
	for _, v := range other.Values() {
		if IsRuntimeValue(v) {
			return true
		}
		for _, item := range listify(v) {
			if hda, ok := item.(*model.HDA); ok && hda != nil {
				if hda.State() != model.StateOK || hda.ImplicitConversion {
					return true
				}
			}
		}
	}
	return false
}
