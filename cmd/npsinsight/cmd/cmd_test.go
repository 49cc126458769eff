package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadResponsesWrappedDocument(t *testing.T) {
	path := writeFile(t, "input.json", `{
		"responses": [
			{"response_id": "r1", "nps_score": 9, "comment": "good"},
			{"response_id": "r2", "nps_score": 4}
		]
	}`)

	responses, err := loadResponses(path)
	if err != nil {
		t.Fatalf("loadResponses: %v", err)
	}
	if len(responses) != 2 || responses[0].ResponseID != "r1" || responses[1].NPSScore != 4 {
		t.Errorf("responses = %+v", responses)
	}
}

func TestLoadResponsesBareArray(t *testing.T) {
	path := writeFile(t, "input.json", `[{"response_id": "r1", "nps_score": 10}]`)

	responses, err := loadResponses(path)
	if err != nil {
		t.Fatalf("loadResponses: %v", err)
	}
	if len(responses) != 1 || responses[0].NPSScore != 10 {
		t.Errorf("responses = %+v", responses)
	}
}

func TestLoadResponsesRejectsGarbage(t *testing.T) {
	path := writeFile(t, "input.json", `{"responses": "not a list"`)
	if _, err := loadResponses(path); err == nil {
		t.Error("malformed input must not parse")
	}
	if _, err := loadResponses(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("missing file must error")
	}
}

func TestVersionCommand(t *testing.T) {
	SetVersion("1.2.3", "abc1234", "2026-03-01")

	buf := new(strings.Builder)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
}

func TestInitWritesConfigOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".npsinsight.yaml")

	rootCmd.SetArgs([]string{"init", "--path", path})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	rootCmd.SetArgs([]string{"init", "--path", path})
	if err := rootCmd.Execute(); err == nil {
		t.Error("second init must refuse to overwrite")
	}
	rootCmd.SetArgs(nil)
}
