package gate_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/5vraa/swims.cc-website-sub000/gate"
)

// stubSubject is a fixed identity for resolver tests.
type stubSubject struct {
	metadataRole string
	links        map[string]string
}

func (s stubSubject) MetadataRole() string { return s.metadataRole }

func (s stubSubject) LinkedIdentity(provider string) (string, bool) {
	id, ok := s.links[provider]
	return id, ok
}

func discordLinked(id string) stubSubject {
	return stubSubject{links: map[string]string{"discord": id}}
}

// countingCheck records how often the oracle was consulted.
func countingCheck(answer bool, calls *int32) gate.ExternalCheck {
	return func(_ context.Context, _ string) bool {
		atomic.AddInt32(calls, 1)
		return answer
	}
}

func TestResolve_ProfileAdminShortCircuits(t *testing.T) {
	r := gate.NewResolver("discord", time.Second)
	var calls int32

	v := r.Resolve(context.Background(),
		&gate.Profile{PrincipalID: "p1", Role: gate.RoleAdmin},
		discordLinked("123"),
		countingCheck(true, &calls))

	if !v.IsStaff || v.Source != gate.SourceProfile || v.Role != gate.RoleAdmin {
		t.Fatalf("unexpected verdict %+v", v)
	}
	if calls != 0 {
		t.Errorf("oracle should not be consulted, got %d calls", calls)
	}
}

func TestResolve_ProfileModerator(t *testing.T) {
	r := gate.NewResolver("", 0)
	v := r.Resolve(context.Background(), &gate.Profile{Role: gate.RoleModerator}, stubSubject{}, nil)
	if !v.IsStaff || v.Source != gate.SourceProfile || v.Role != gate.RoleModerator {
		t.Fatalf("unexpected verdict %+v", v)
	}
}

func TestResolve_MetadataAdmin(t *testing.T) {
	r := gate.NewResolver("discord", time.Second)
	var calls int32

	v := r.Resolve(context.Background(),
		&gate.Profile{Role: gate.RoleUser},
		stubSubject{metadataRole: "admin", links: map[string]string{"discord": "123"}},
		countingCheck(true, &calls))

	if !v.IsStaff || v.Source != gate.SourceMetadata {
		t.Fatalf("unexpected verdict %+v", v)
	}
	if calls != 0 {
		t.Errorf("oracle should not be consulted, got %d calls", calls)
	}
}

func TestResolve_MetadataNonAdminIgnored(t *testing.T) {
	r := gate.NewResolver("discord", time.Second)
	v := r.Resolve(context.Background(), nil, stubSubject{metadataRole: "moderator"}, nil)
	if v != gate.NoPrivilege {
		t.Fatalf("expected no privilege, got %+v", v)
	}
}

func TestResolve_NoLinkedIdentityNeverCallsOracle(t *testing.T) {
	r := gate.NewResolver("discord", time.Second)
	var calls int32

	v := r.Resolve(context.Background(), nil,
		stubSubject{links: map[string]string{"spotify": "abc"}},
		countingCheck(true, &calls))

	if v.IsStaff || v.Source != gate.SourceNone {
		t.Fatalf("unexpected verdict %+v", v)
	}
	if calls != 0 {
		t.Errorf("oracle called %d times for unlinked principal", calls)
	}
}

func TestResolve_ExternalTrue(t *testing.T) {
	r := gate.NewResolver("discord", time.Second)
	var calls int32

	v := r.Resolve(context.Background(), nil, discordLinked("123"), countingCheck(true, &calls))

	if !v.IsStaff || v.Source != gate.SourceExternal || v.Role != gate.RoleModerator {
		t.Fatalf("unexpected verdict %+v", v)
	}
	if calls != 1 {
		t.Errorf("expected exactly one oracle call, got %d", calls)
	}
}

func TestResolve_ExternalFalse(t *testing.T) {
	r := gate.NewResolver("discord", time.Second)
	var calls int32
	v := r.Resolve(context.Background(), &gate.Profile{Role: gate.RoleUser}, discordLinked("123"), countingCheck(false, &calls))
	if v != gate.NoPrivilege {
		t.Fatalf("expected no privilege, got %+v", v)
	}
}

func TestResolve_ExternalReceivesLinkedID(t *testing.T) {
	r := gate.NewResolver("discord", time.Second)
	var got string
	r.Resolve(context.Background(), nil, discordLinked("987654"), func(_ context.Context, id string) bool {
		got = id
		return false
	})
	if got != "987654" {
		t.Errorf("expected external id 987654, got %q", got)
	}
}

func TestResolve_ExternalTimeoutIsNotStaff(t *testing.T) {
	timeout := 50 * time.Millisecond
	r := gate.NewResolver("discord", timeout)

	release := make(chan struct{})
	defer close(release)
	slow := func(_ context.Context, _ string) bool {
		<-release
		return true
	}

	start := time.Now()
	v := r.Resolve(context.Background(), nil, discordLinked("123"), slow)
	elapsed := time.Since(start)

	if v.IsStaff {
		t.Fatalf("timed out check must not grant staff, got %+v", v)
	}
	if elapsed > timeout+500*time.Millisecond {
		t.Errorf("resolve took %s, bound is %s", elapsed, timeout)
	}
}

func TestResolve_ExternalHonoursParentCancel(t *testing.T) {
	r := gate.NewResolver("discord", time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := r.Resolve(ctx, nil, discordLinked("123"), func(ctx context.Context, _ string) bool {
		<-ctx.Done()
		return true
	})
	if v.IsStaff {
		t.Fatalf("cancelled check must not grant staff, got %+v", v)
	}
}

func TestResolve_ExternalPanicIsNotStaff(t *testing.T) {
	r := gate.NewResolver("discord", time.Second)
	v := r.Resolve(context.Background(), nil, discordLinked("123"), func(context.Context, string) bool {
		panic("boom")
	})
	if v.IsStaff {
		t.Fatalf("panicking check must not grant staff, got %+v", v)
	}
}

func TestResolve_NilSubject(t *testing.T) {
	r := gate.NewResolver("discord", time.Second)
	if v := r.Resolve(context.Background(), nil, nil, nil); v != gate.NoPrivilege {
		t.Fatalf("expected no privilege, got %+v", v)
	}
}

func TestNewResolver_Defaults(t *testing.T) {
	r := gate.NewResolver("", 0)
	if r.Timeout() != gate.DefaultExternalTimeout {
		t.Errorf("expected default timeout, got %s", r.Timeout())
	}
}
