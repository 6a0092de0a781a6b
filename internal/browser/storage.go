package browser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-rod/rod"

	"github.com/jinzenshi/gongkao/internal/state"
)

// seededFlag marks a tab whose storage was already seeded. It lives in
// sessionStorage, which is per tab and per origin, and is never exported.
const seededFlag = "__gongkao_seeded__"

type storageSeed struct {
	Local   [][2]string `json:"local"`
	Session [][2]string `json:"session"`
}

// seedScript returns a document-start script that installs the saved
// storage of whichever origin the document belongs to. Each origin is
// seeded once per tab. It returns "" when there is nothing to seed.
func seedScript(origins []state.Origin) (string, error) {
	seeds := map[string]storageSeed{}
	for _, o := range origins {
		if o.Origin == "" || (len(o.LocalStorage) == 0 && len(o.SessionStorage) == 0) {
			continue
		}
		s := storageSeed{Local: [][2]string{}, Session: [][2]string{}}
		for _, kv := range o.LocalStorage {
			s.Local = append(s.Local, [2]string{kv.Name, kv.Value})
		}
		for _, kv := range o.SessionStorage {
			s.Session = append(s.Session, [2]string{kv.Name, kv.Value})
		}
		seeds[o.Origin] = s
	}
	if len(seeds) == 0 {
		return "", nil
	}

	data, err := json.Marshal(seeds)
	if err != nil {
		return "", fmt.Errorf("encode storage seed: %w", err)
	}

	return fmt.Sprintf(`(() => {
	const seeds = %s;
	const seed = seeds[location.origin];
	if (!seed) return;
	try {
		if (sessionStorage.getItem(%q)) return;
		for (const [k, v] of seed.local) localStorage.setItem(k, v);
		for (const [k, v] of seed.session) sessionStorage.setItem(k, v);
		sessionStorage.setItem(%q, "1");
	} catch (e) {}
})();`, data, seededFlag, seededFlag), nil
}

type storageSnapshot struct {
	Origin  string      `json:"origin"`
	Local   [][2]string `json:"local"`
	Session [][2]string `json:"session"`
}

// snapshotStorage reads both web storages of the page's current document.
func snapshotStorage(page *rod.Page) (*storageSnapshot, error) {
	res, err := page.Evaluate(&rod.EvalOptions{
		JS: `() => {
			const dump = (store) => {
				try {
					const out = [];
					for (let i = 0; i < store.length; i++) {
						const k = store.key(i);
						out.push([k, store.getItem(k)]);
					}
					return out;
				} catch (e) {
					return [];
				}
			};
			return JSON.stringify({
				origin: location.origin,
				local: dump(window.localStorage),
				session: dump(window.sessionStorage),
			});
		}`,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("read web storage: %w", err)
	}
	if res == nil || res.Value.Nil() {
		return &storageSnapshot{}, nil
	}

	var snap storageSnapshot
	if err := json.Unmarshal([]byte(res.Value.String()), &snap); err != nil {
		return nil, fmt.Errorf("decode web storage: %w", err)
	}
	return &snap, nil
}

// toOrigin converts a snapshot, dropping the seeding marker. ok is false for
// opaque origins that cannot hold storage worth saving.
func (s *storageSnapshot) toOrigin() (state.Origin, bool) {
	if s == nil || !strings.HasPrefix(s.Origin, "http") {
		return state.Origin{}, false
	}
	o := state.Origin{Origin: s.Origin, LocalStorage: []state.NameValue{}}
	for _, kv := range s.Local {
		o.LocalStorage = append(o.LocalStorage, state.NameValue{Name: kv[0], Value: kv[1]})
	}
	for _, kv := range s.Session {
		if kv[0] == seededFlag {
			continue
		}
		o.SessionStorage = append(o.SessionStorage, state.NameValue{Name: kv[0], Value: kv[1]})
	}
	return o, true
}

// mergeOrigins replaces (or appends) current in prior. Origins that are not
// open in the page are carried forward unchanged. A current origin with no
// entries removes that origin from the result.
func mergeOrigins(prior []state.Origin, current state.Origin, hasCurrent bool) []state.Origin {
	out := make([]state.Origin, 0, len(prior)+1)
	empty := len(current.LocalStorage) == 0 && len(current.SessionStorage) == 0
	replaced := false
	for _, o := range prior {
		if hasCurrent && o.Origin == current.Origin {
			replaced = true
			if !empty {
				out = append(out, current)
			}
			continue
		}
		out = append(out, o)
	}
	if hasCurrent && !replaced && !empty {
		out = append(out, current)
	}
	return out
}
