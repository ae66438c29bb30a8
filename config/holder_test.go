package config_test

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tola-labs/cfusage/config"
)

func TestHolder_Get(t *testing.T) {
	path := writeConfig(t, minimalConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	got := h.Get()
	if got == nil {
		t.Fatal("Get returned nil")
	}
	if got.Foundations[0].Name != "east" {
		t.Errorf("Foundations[0].Name = %s, want east", got.Foundations[0].Name)
	}
}

func TestHolder_ReloadNotifies(t *testing.T) {
	path := writeConfig(t, minimalConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var mu sync.Mutex
	var received *config.Config
	h.OnChange(func(cfg *config.Config) {
		mu.Lock()
		received = cfg
		mu.Unlock()
	})

	updated := minimalConfig() + `
excluded_orgs: [sandbox]
included_services: [p.mysql, p-redis]
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if received == nil {
		t.Fatal("OnChange callback was not called")
	}
	if len(received.ExcludedOrgs) != 1 || received.ExcludedOrgs[0] != "sandbox" {
		t.Errorf("ExcludedOrgs = %v", received.ExcludedOrgs)
	}
	if len(received.IncludedServices) != 2 {
		t.Errorf("IncludedServices = %v", received.IncludedServices)
	}
	if h.Get().Logging.Level != "debug" {
		t.Errorf("Logging.Level = %s, want debug", h.Get().Logging.Level)
	}
}

func TestHolder_ReloadInvalidConfig(t *testing.T) {
	path := writeConfig(t, minimalConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var reloadErrs int
	h.OnError(func(error) { reloadErrs++ })

	if err := os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0644); err != nil {
		t.Fatalf("write invalid config: %v", err)
	}

	if err := h.Reload(); err == nil {
		t.Error("Reload should fail for a config without foundations")
	}
	if reloadErrs != 1 {
		t.Errorf("OnError called %d times, want 1", reloadErrs)
	}
	if len(h.Get().Foundations) != 1 {
		t.Error("should keep old config after a failed reload")
	}
}

func TestHolder_WatchFile(t *testing.T) {
	path := writeConfig(t, minimalConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	changed := make(chan struct{}, 8)
	h.OnChange(func(*config.Config) { changed <- struct{}{} })

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	updated := minimalConfig() + "\nexcluded_orgs: [from-watch]\n"
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("file watcher did not trigger reload")
	}

	// Writes may arrive as several events; wait for the final content.
	deadline := time.Now().Add(2 * time.Second)
	for {
		orgs := h.Get().ExcludedOrgs
		if len(orgs) == 1 && orgs[0] == "from-watch" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("ExcludedOrgs = %v after file watch", orgs)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHolder_ConcurrentAccess(t *testing.T) {
	path := writeConfig(t, minimalConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if h.Get() == nil {
					t.Error("concurrent Get returned nil")
				}
			}
		}()
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Reload()
		}()
	}

	wg.Wait()
}

func TestReloadableFields(t *testing.T) {
	fields := config.ReloadableFields()

	expected := []string{"excluded_orgs", "included_services", "logging.level"}
	for _, e := range expected {
		found := false
		for _, f := range fields {
			if f == e {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("%s not in ReloadableFields", e)
		}
	}
}

func TestNonReloadableFields(t *testing.T) {
	fields := config.NonReloadableFields()

	expected := []string{"server.host", "server.port", "foundations"}
	for _, e := range expected {
		found := false
		for _, f := range fields {
			if f == e {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("%s not in NonReloadableFields", e)
		}
	}
}
