package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDependencyGuard_DeniesKnownTyposquats(t *testing.T) {
	g := NewDependencyGuard("")
	for _, command := range []string{
		"pip install colourama",
		"pip3 install requestslib",
		"python -m pip install djago",
		"npm install crossenv",
		"npm i lodahs",
		"yarn add recat",
	} {
		res, err := g.Handle(context.Background(), bashEvent(command, t.TempDir()))
		if err != nil {
			t.Fatalf("Handle(%q): %v", command, err)
		}
		if res == nil || !res.Deny {
			t.Fatalf("expected %q to be denied", command)
		}
	}
}

func TestDependencyGuard_AllowsLegitimatePackages(t *testing.T) {
	g := NewDependencyGuard("")
	for _, command := range []string{
		"pip install requests",
		"pip install numpy pandas",
		"npm install express",
		"yarn add react react-dom",
		"pip install -r requirements.txt",
	} {
		res, _ := g.Handle(context.Background(), bashEvent(command, t.TempDir()))
		if res != nil && res.Deny {
			t.Fatalf("expected %q to be allowed, got deny: %s", command, res.Reason)
		}
	}
}

func TestDependencyGuard_MixedInstallDenied(t *testing.T) {
	g := NewDependencyGuard("")
	res, _ := g.Handle(context.Background(), bashEvent("pip install requests urllib4", t.TempDir()))
	if res == nil || !res.Deny {
		t.Fatal("install mixing a good and a typosquatted package must be denied")
	}
	if !strings.Contains(res.Reason, "urllib4") {
		t.Fatalf("reason should name the offending package: %s", res.Reason)
	}
}

func TestDependencyGuard_BuiltinShadowingDenied(t *testing.T) {
	g := NewDependencyGuard("")
	for _, command := range []string{
		"pip install setup",
		"pip install os",
		"pip install sys",
		"pip install http",
		"pip3 install pip",
		"npm install node",
	} {
		res, _ := g.Handle(context.Background(), bashEvent(command, t.TempDir()))
		if res == nil || !res.Deny {
			t.Fatalf("builtin-shadowing install %q must be denied, got %+v", command, res)
		}
	}
}

func TestDependencyGuard_NearMissDenied(t *testing.T) {
	g := NewDependencyGuard("")
	for _, command := range []string{
		"npm install reacct",
		"npm install reactt",
		"pip install requestss",
	} {
		res, _ := g.Handle(context.Background(), bashEvent(command, t.TempDir()))
		if res == nil || !res.Deny {
			t.Fatalf("one-edit near miss %q must be denied, got %+v", command, res)
		}
	}

	res, _ := g.Handle(context.Background(), bashEvent("npm install reacct", t.TempDir()))
	if !strings.Contains(res.Reason, "react") {
		t.Fatalf("denial should name the likely intended package: %s", res.Reason)
	}
}

func TestDependencyGuard_ProjectDenyListHonored(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "security", "deny_list.txt")
	if err := os.MkdirAll(filepath.Dir(listPath), 0o755); err != nil {
		t.Fatal(err)
	}
	content := "# project-specific blocks\npip:internal-tools\nnpm:legacy-widget\n"
	if err := os.WriteFile(listPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	g := NewDependencyGuard("security/deny_list.txt")

	res, _ := g.Handle(context.Background(), bashEvent("pip install internal-tools", dir))
	if res == nil || !res.Deny {
		t.Fatal("deny list pip entry should block the install")
	}
	res, _ = g.Handle(context.Background(), bashEvent("npm install legacy-widget", dir))
	if res == nil || !res.Deny {
		t.Fatal("deny list npm entry should block the install")
	}
}

func TestDependencyGuard_VersionQualifiersStripped(t *testing.T) {
	g := NewDependencyGuard("")
	res, _ := g.Handle(context.Background(), bashEvent("pip install fask==1.1.0", t.TempDir()))
	if res == nil || !res.Deny {
		t.Fatal("version-pinned typosquat must still be denied")
	}
}

func TestDependencyGuard_NonInstallCommandsIgnored(t *testing.T) {
	g := NewDependencyGuard("")
	res, _ := g.Handle(context.Background(), bashEvent("pip freeze && npm audit", t.TempDir()))
	if res != nil {
		t.Fatalf("non-install commands should be silent, got %+v", res)
	}
}
