package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// SiteSummary counts the cookies of one registrable domain.
type SiteSummary struct {
	Site       string
	Cookies    int
	Expired    int
	Session    int
	NextExpiry *time.Time // earliest expiry among live persistent cookies
}

// Summary describes a session state at a point in time.
type Summary struct {
	Cookies        int
	Expired        int
	Session        int
	Persistent     int
	NextExpiry     *time.Time
	Sites          []SiteSummary
	StorageOrigins []string
	StorageEntries int
}

// Summarize groups cookies by registrable domain and counts expired,
// session, and persistent cookies relative to now.
func Summarize(st *SessionState, now time.Time) Summary {
	var sum Summary
	if st == nil {
		return sum
	}

	sites := map[string]*SiteSummary{}
	for _, c := range st.Cookies {
		if c.Name == "" {
			continue
		}
		site := siteOf(c.Domain)
		s, ok := sites[site]
		if !ok {
			s = &SiteSummary{Site: site}
			sites[site] = s
		}
		sum.Cookies++
		s.Cookies++

		exp, persistent := c.ExpiresAt()
		switch {
		case !persistent:
			sum.Session++
			s.Session++
		case exp.Before(now):
			sum.Expired++
			s.Expired++
		default:
			sum.Persistent++
			sum.NextExpiry = earliest(sum.NextExpiry, exp)
			s.NextExpiry = earliest(s.NextExpiry, exp)
		}
	}

	for _, s := range sites {
		sum.Sites = append(sum.Sites, *s)
	}
	sort.Slice(sum.Sites, func(i, j int) bool { return sum.Sites[i].Site < sum.Sites[j].Site })

	for _, o := range st.Origins {
		sum.StorageOrigins = append(sum.StorageOrigins, o.Origin)
		sum.StorageEntries += len(o.LocalStorage) + len(o.SessionStorage)
	}
	sort.Strings(sum.StorageOrigins)
	return sum
}

// Backup is a backup file found next to the canonical file.
type Backup struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// ListBackups returns the backup files in dir, newest first.
func ListBackups(dir string) ([]Backup, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	var out []Backup
	for _, e := range entries {
		if e.IsDir() || !IsBackupName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Backup{
			Path:    filepath.Join(dir, e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	// Names embed the timestamp, so lexical order is chronological.
	sort.Slice(out, func(i, j int) bool { return out[i].Path > out[j].Path })
	return out, nil
}

func siteOf(domain string) string {
	host := normalizeHost(domain)
	if host == "" {
		return "(no domain)"
	}
	site, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return site
}

func normalizeHost(h string) string {
	h = strings.TrimSpace(strings.ToLower(h))
	h = strings.TrimPrefix(h, ".")
	return strings.TrimSuffix(h, ".")
}

func earliest(cur *time.Time, t time.Time) *time.Time {
	if cur == nil || t.Before(*cur) {
		return &t
	}
	return cur
}
