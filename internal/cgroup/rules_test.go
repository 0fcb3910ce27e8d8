package cgroup

import (
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"testing"
)

func TestParseControllerListWildcard(t *testing.T) {
	if got := parseControllerList("*"); got != nil {
		t.Fatalf("expected nil (every controller) for *, got %v", got)
	}
	got := parseControllerList("cpu,cpuacct")
	if len(got) != 2 || got[0] != "cpu" || got[1] != "cpuacct" {
		t.Fatalf("got %v", got)
	}
}

func TestResolveWildcardSubject(t *testing.T) {
	subj, ok := resolveSubject("*")
	if !ok || subj.Kind != SubjectWildcard {
		t.Fatalf("expected wildcard subject, got %+v, ok=%v", subj, ok)
	}
}

func TestResolveUnknownGroupSkipped(t *testing.T) {
	_, ok := resolveSubject("@no-such-group-should-exist-anywhere")
	if ok {
		t.Fatal("expected resolution of an unknown group to fail")
	}
}

func TestParseRulesTooManyControllersFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cgrules.conf")
	line := "*    a,b,c,d,e,f,g,h,i    dest\n"
	if err := os.WriteFile(path, []byte(line), 0644); err != nil {
		t.Fatal(err)
	}

	ctx := NewContext()
	ctx.RulesPath = path
	err := ctx.LoadRules()
	if err == nil {
		t.Fatal("expected a parse failure for more than 8 controllers")
	}
	var cgErr *Error
	if !as(err, &cgErr) || cgErr.Kind != KindParseFailed {
		t.Fatalf("expected KindParseFailed, got %v", err)
	}
}

func TestLoadRulesCachesWildcardRule(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cgrules.conf")
	content := "# comment line\n\n*    cpu    default\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	ctx := NewContext()
	ctx.RulesPath = path
	if err := ctx.LoadRules(); err != nil {
		t.Fatalf("LoadRules: %v", err)
	}

	rule, ok := ctx.FindMatchingRule(9999, 9999)
	if !ok {
		t.Fatal("expected the wildcard rule to match any uid/gid")
	}
	if rule.Destination != "default" {
		t.Fatalf("got destination %q", rule.Destination)
	}
}

func TestParseRulesSkipsContinuationOfUnknownUser(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cgrules.conf")
	content := "no-such-user-xyz cpu group1\n%           memory group1\n*          cpu    group2\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	ctx := NewContext()
	ctx.RulesPath = path
	if err := ctx.LoadRules(); err != nil {
		t.Fatalf("LoadRules: %v", err)
	}

	// Only the wildcard rule should have made it into the cache: the first
	// two lines (an unresolvable user and its continuation) are skipped.
	if len(ctx.rules) != 1 {
		t.Fatalf("expected exactly 1 cached rule, got %d: %+v", len(ctx.rules), ctx.rules)
	}
	if ctx.rules[0].Destination != "group2" {
		t.Fatalf("got %+v", ctx.rules[0])
	}
}

func TestParseRulesSkipsContinuationOfNonMatchingHead(t *testing.T) {
	me, err := user.Current()
	if err != nil {
		t.Skipf("cannot resolve current user: %v", err)
	}
	uid, _ := strconv.Atoi(me.Uid)
	gid, _ := strconv.Atoi(me.Gid)

	dir := t.TempDir()
	path := filepath.Join(dir, "cgrules.conf")
	// "nobody" resolves but (almost) never matches the caller; its
	// continuation must not leak onto the rule that actually matches below.
	content := "nobody cpu     bobg\n%       memory  bobg2\n" + me.Username + " cpu     aliceg\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	ctx := NewContext()
	ctx.RulesPath = path

	rules, parseErr := ctx.parseRules(false, uid, gid)
	if parseErr != nil {
		t.Fatalf("parseRules: %v", parseErr)
	}
	if len(rules) != 1 {
		t.Fatalf("expected exactly 1 matched rule, got %d: %+v", len(rules), rules)
	}
	if rules[0].Destination != "aliceg" {
		t.Fatalf("expected the caller's own rule, got %+v", rules[0])
	}
	if len(rules[0].Continuations) != 0 {
		t.Fatalf("nobody's continuation must not attach to the matched rule, got %+v", rules[0].Continuations)
	}
}

func TestChangeCgroupNoMatchIsNoOp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cgrules.conf")
	content := "no-such-user-xyz cpu group1\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	ctx := NewContext()
	ctx.RulesPath = path
	if err := ctx.LoadRules(); err != nil {
		t.Fatalf("LoadRules: %v", err)
	}

	if err := ctx.ChangeCgroup(999999, 999999, 1, true); err != nil {
		t.Fatalf("expected no-op success for a non-matching uid/gid, got %v", err)
	}
	if err := ctx.ChangeCgroup(999999, 999999, 1, false); err != nil {
		t.Fatalf("expected no-op success in non-cache mode too, got %v", err)
	}
}

func TestParseRulesMissingFile(t *testing.T) {
	ctx := NewContext()
	ctx.RulesPath = "/does/not/exist/cgrules.conf"
	err := ctx.LoadRules()
	var cgErr *Error
	if !as(err, &cgErr) || cgErr.Kind != KindRulesFileMissing {
		t.Fatalf("expected KindRulesFileMissing, got %v", err)
	}
}
