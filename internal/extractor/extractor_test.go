package extractor

import (
	"reflect"
	"strings"
	"testing"
)

func parseT(t *testing.T, doc string) *Report {
	t.Helper()
	r, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return r
}

func TestParseBadJSON(t *testing.T) {
	if _, err := Parse([]byte("{not json")); err == nil {
		t.Fatal("want error for malformed document")
	}
}

func TestEmptyReportYieldsNoLines(t *testing.T) {
	r := parseT(t, `{}`)
	if lines := Extract(r); len(lines) != 0 {
		t.Fatalf("want no lines, got %v", lines)
	}
}

func TestTypeTagSingleLine(t *testing.T) {
	r := parseT(t, `{"files":{"data":{"attributes":{"type_tag":"PE32"}}}}`)

	lines := Extract(r)
	if len(lines) != 1 || lines[0] != "[type_tag] PE32" {
		t.Fatalf("want exactly [\"[type_tag] PE32\"], got %v", lines)
	}
}

func TestFileFeatures(t *testing.T) {
	r := parseT(t, `{
		"files": {"data": {"attributes": {
			"type_tags": ["executable", "windows"],
			"type_tag": "peexe",
			"type_extension": "exe",
			"magic": "PE32 executable",
			"import_list": [
				{"library_name": "KERNEL32.dll", "imported_functions": ["CreateFileA", "ReadFile"]}
			],
			"detectiteasy": {
				"filetype": "PE32",
				"values": [{"info": "Console", "version": "6.0", "type": "Compiler", "name": "MSVC"}]
			}
		}}}
	}`)

	want := []string{
		"[type_tags] executable",
		"[type_tags] windows",
		"[type_tag] peexe",
		"[detectiteasy] PE32 Console 6.0 Compiler MSVC",
		"[type_extension] exe",
		"[import_list] KERNEL32.dll: CreateFileA",
		"[import_list] KERNEL32.dll: ReadFile",
		"[magic] PE32 executable",
	}
	if got := Extract(r); !reflect.DeepEqual(got, want) {
		t.Fatalf("got:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestRichestSourceSelection(t *testing.T) {
	r := parseT(t, `{
		"files_behaviours": {"data": [
			{"attributes": {"sandbox_name": "Poor Box", "mutexes_created": ["m1"]}},
			{"attributes": {"sandbox_name": "Rich Box", "mutexes_created": ["m1", "m2", "m3"]}}
		]}
	}`)

	want := []string{
		"[mutexes_created] m1",
		"[mutexes_created] m2",
		"[mutexes_created] m3",
	}
	if got := Extract(r); !reflect.DeepEqual(got, want) {
		t.Fatalf("richest source not selected: %v", got)
	}
}

func TestRichestSourceTieBreakIsDocumentOrder(t *testing.T) {
	r := parseT(t, `{
		"files_behaviours": {"data": [
			{"attributes": {"sandbox_name": "First", "files_opened": ["a", "b"]}},
			{"attributes": {"sandbox_name": "Second", "files_opened": ["c", "d"]}}
		]}
	}`)

	want := []string{"[files_opened] a", "[files_opened] b"}
	if got := Extract(r); !reflect.DeepEqual(got, want) {
		t.Fatalf("tie must keep the first source in document order: %v", got)
	}
}

func TestProcessTreeFlattening(t *testing.T) {
	r := parseT(t, `{
		"files_behaviours": {"data": [
			{"attributes": {"sandbox_name": "Box", "processes_tree": [
				{"name": "explorer.exe", "children": [
					{"name": "cmd.exe", "children": [{"name": "evil.exe"}]},
					{"name": "notepad.exe"}
				]}
			]}}
		]}
	}`)

	want := []string{
		"[processes_tree] explorer.exe -> cmd.exe -> evil.exe",
		"[processes_tree] explorer.exe -> notepad.exe",
	}
	if got := Extract(r); !reflect.DeepEqual(got, want) {
		t.Fatalf("tree not flattened to root-to-leaf paths: %v", got)
	}
}

func TestSignatureMatchesDeduplicated(t *testing.T) {
	r := parseT(t, `{
		"files_behaviours": {"data": [
			{"attributes": {"sandbox_name": "CAPA", "signature_matches": [
				{"description": "injects into processes"},
				{"description": "reads registry"},
				{"description": "injects into processes"}
			]}}
		]}
	}`)

	want := []string{
		"[signature_matches] injects into processes",
		"[signature_matches] reads registry",
	}
	if got := Extract(r); !reflect.DeepEqual(got, want) {
		t.Fatalf("duplicates must collapse, keeping first occurrence: %v", got)
	}
}

func TestStructuredBehaviourRenderers(t *testing.T) {
	r := parseT(t, `{
		"files_behaviours": {"data": [
			{"attributes": {
				"sandbox_name": "Box",
				"registry_keys_set": [{"key": "HKCU\\Run", "value": "evil.exe"}, {"key": "HKLM\\X"}],
				"dns_lookups": [{"hostname": "c2.example.com"}],
				"ip_traffic": [{"transport_layer_protocol": "TCP", "destination_ip": "10.0.0.1", "destination_port": 443}],
				"http_conversations": [{"request_method": "POST", "url": "http://c2.example.com/beacon"}],
				"files_copied": [{"source": "a.exe", "destination": "b.exe"}],
				"files_dropped": [{"path": "C:\\Temp\\drop.dll"}],
				"command_executions": ["cmd /c whoami", "   "]
			}}
		]}
	}`)

	got := Extract(r)
	want := []string{
		"[registry_keys_set] 'HKCU\\Run': 'evil.exe'",
		"[command_executions] cmd /c whoami",
		"[dns_lookups] c2.example.com",
		"[files_dropped] C:\\Temp\\drop.dll",
		"[files_copied] 'a.exe' to 'b.exe'",
		"[ip_traffic] TCP 10.0.0.1 443",
		"[http_conversations] POST http://c2.example.com/beacon",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestDetectItEasyPartialValues(t *testing.T) {
	r := parseT(t, `{
		"files": {"data": {"attributes": {
			"detectiteasy": {
				"values": [{"type": "Packer", "name": "UPX"}]
			}
		}}}
	}`)

	lines := Extract(r)
	if len(lines) != 1 || lines[0] != "[detectiteasy] Packer UPX" {
		t.Fatalf("missing fields must collapse, got %v", lines)
	}
}

func TestRegistryKeysSetSkipsIncompleteEntries(t *testing.T) {
	r := parseT(t, `{
		"files_behaviours": {"data": [
			{"attributes": {"sandbox_name": "Box", "registry_keys_set": [
				{"key": "HKLM\\NoValue"},
				{"value": "orphan.exe"},
				{"key": "HKCU\\Run", "value": "evil.exe"}
			]}}
		]}
	}`)

	want := []string{"[registry_keys_set] 'HKCU\\Run': 'evil.exe'"}
	if got := Extract(r); !reflect.DeepEqual(got, want) {
		t.Fatalf("incomplete entries must be skipped: %v", got)
	}
}

func TestCorpusJoinsWithNewlines(t *testing.T) {
	r := parseT(t, `{"files":{"data":{"attributes":{"type_tags":["a","b"]}}}}`)

	if got := Corpus(r); got != "[type_tags] a\n[type_tags] b" {
		t.Fatalf("unexpected corpus: %q", got)
	}
}

func TestSandboxesKeepDocumentOrder(t *testing.T) {
	r := parseT(t, `{
		"files_behaviours": {"data": [
			{"attributes": {"sandbox_name": "Zeta"}},
			{"attributes": {"sandbox_name": "Alpha"}}
		]}
	}`)

	if got := r.Sandboxes(); !reflect.DeepEqual(got, []string{"Zeta", "Alpha"}) {
		t.Fatalf("unexpected sandbox order: %v", got)
	}
}
