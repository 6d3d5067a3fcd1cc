package lifecycle

// Kind distinguishes STANDARD apps, which demand exclusive foreground
// tenancy among themselves, from every other kind (spec.md §4.3).
type Kind string

const (
	KindStandard   Kind = "standard"
	KindBackground Kind = "background"
	KindSystem     Kind = "system"
)

// App is the static registration record a Controller resolves packageName
// against. It is supplied by an AppResolver (in this server, the
// StaticResolver built from configuration); Controller never mutates it.
type App struct {
	PackageName string
	Kind        Kind
	PublicURL   string // webhook base URL reachable from outside the cluster
	InternalURL string // webhook base URL for system apps running in-cluster
	APIKey      string
}

// WebhookURL chooses the URL a session_request/stop_request webhook is sent
// to: system apps receive the internal URL when available (spec.md §4.3
// step 5, "The URL is chosen by environment").
func (a App) WebhookURL() string {
	if a.Kind == KindSystem && a.InternalURL != "" {
		return a.InternalURL
	}
	return a.PublicURL
}

// AppResolver looks up the static registration record for a package.
type AppResolver interface {
	ResolveApp(packageName string) (App, bool)
}

// StaticResolver is an AppResolver backed by a fixed, in-memory app catalog
// — the cloud's view of spec.md §3's TPARegistration list, built once at
// startup. Register/heartbeat traffic to the registration service does not
// change it.
type StaticResolver struct {
	apps map[string]App
}

// NewStaticResolver indexes apps by PackageName.
func NewStaticResolver(apps []App) *StaticResolver {
	r := &StaticResolver{apps: make(map[string]App, len(apps))}
	for _, a := range apps {
		r.apps[a.PackageName] = a
	}
	return r
}

func (r *StaticResolver) ResolveApp(packageName string) (App, bool) {
	a, ok := r.apps[packageName]
	return a, ok
}
