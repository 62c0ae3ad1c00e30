// Package guard decides, before a page is shown, whether the visitor may
// see it or must be sent elsewhere.
package guard

import (
	"context"
	"net/url"
	"strings"

	"spendly/internal/core"
	"spendly/internal/log"
)

const (
	LoginPath     = "/login"
	DashboardPath = "/dashboard"
	appName       = "Spendly"
)

// Access classifies a route.
type Access int

const (
	Public Access = iota
	RequiresAuth
	RequiresGuest
)

// Route is one page of the application.
type Route struct {
	Path     string
	Name     string
	Title    string
	Access   Access
	Redirect string
}

// Routes is the page table.
var Routes = []Route{
	{Path: "/", Redirect: LoginPath},
	{Path: LoginPath, Name: "login", Title: "Iniciar sesión", Access: RequiresGuest},
	{Path: "/register", Name: "register", Title: "Crear cuenta", Access: RequiresGuest},
	{Path: DashboardPath, Name: "dashboard", Title: "Dashboard", Access: RequiresAuth},
	{Path: "/movimientos", Name: "movimientos", Title: "Movimientos", Access: RequiresAuth},
	{Path: "/ahorros", Name: "ahorros", Title: "Ahorros", Access: RequiresAuth},
	{Path: "/compras", Name: "compras", Title: "Compras", Access: RequiresAuth},
	{Path: "/perfil", Name: "perfil", Title: "Perfil", Access: RequiresAuth},
	{Path: "/configuracion", Name: "configuracion", Title: "Configuración", Access: RequiresAuth},
}

// Session is the session container the guard consults.
type Session interface {
	Init(ctx context.Context) error
	IsAuthenticated() bool
}

// Decision is the outcome for one navigation. Exactly one of Redirect and
// Title is set.
type Decision struct {
	Route    string `json:"route,omitempty"`
	Redirect string `json:"redirect,omitempty"`
	Title    string `json:"title,omitempty"`
}

type Guard struct {
	routes map[string]Route
	logger *log.Logger
}

func New(logger *log.Logger) *Guard {
	routes := make(map[string]Route, len(Routes))
	for _, r := range Routes {
		routes[r.Path] = r
	}
	return &Guard{routes: routes, logger: logger.WithComponent(log.ComponentGuard)}
}

// Before initializes session if needed and classifies target, which may
// carry a query string.
func (g *Guard) Before(ctx context.Context, session Session, target string) (Decision, error) {
	path := target
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}

	route, ok := g.routes[path]
	if !ok {
		return Decision{}, core.NewError(core.ErrNotFound, "Página no encontrada")
	}
	if route.Redirect != "" {
		return Decision{Route: route.Name, Redirect: route.Redirect}, nil
	}

	if err := session.Init(ctx); err != nil {
		return Decision{}, err
	}
	authenticated := session.IsAuthenticated()

	switch {
	case route.Access == RequiresAuth && !authenticated:
		g.logger.DebugContext(ctx, "Redirecting anonymous visitor to login", log.FieldPath, target)
		return Decision{Route: route.Name, Redirect: LoginPath + "?redirect=" + url.QueryEscape(target)}, nil
	case route.Access == RequiresGuest && authenticated:
		return Decision{Route: route.Name, Redirect: DashboardPath}, nil
	}
	return Decision{Route: route.Name, Title: route.Title + " | " + appName}, nil
}
