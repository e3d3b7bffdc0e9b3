package domain

// Site is a production site.
type Site struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

// Line is a line or section within a site.
type Line struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

// Reason is a downtime direction offered in forms.
type Reason struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

// Registry is the static plant layout. Order of Sites, Lines and Reasons is
// the declared order and drives rendering.
type Registry struct {
	Sites   []Site            `yaml:"sites"`
	Lines   map[string][]Line `yaml:"lines"`
	Reasons []Reason          `yaml:"reasons"`
}

// Site returns the site with key.
func (r Registry) Site(key string) (Site, error) {
	for _, site := range r.Sites {
		if site.Key == key {
			return site, nil
		}
	}
	return Site{}, ErrUnknownSite
}

// SiteLines returns the lines declared for a site key and whether the site
// has a lines entry at all.
func (r Registry) SiteLines(siteKey string) ([]Line, bool) {
	lines, ok := r.Lines[siteKey]
	return lines, ok
}

// Line returns a line of a site.
func (r Registry) Line(siteKey, lineKey string) (Line, error) {
	lines, ok := r.Lines[siteKey]
	if !ok {
		return Line{}, ErrUnknownSite
	}
	for _, line := range lines {
		if line.Key == lineKey {
			return line, nil
		}
	}
	return Line{}, ErrUnknownLine
}

// Reason returns the reason with key.
func (r Registry) Reason(key string) (Reason, bool) {
	for _, reason := range r.Reasons {
		if reason.Key == key {
			return reason, true
		}
	}
	return Reason{}, false
}
