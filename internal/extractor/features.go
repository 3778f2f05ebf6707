package extractor

import (
	"strconv"
	"strings"
)

// renderFunc turns one feature of the report into tagged corpus lines.
// Missing or empty data yields no lines, never an error.
type renderFunc func(r *Report) []string

type feature struct {
	name   string
	render renderFunc
}

// features is the static registry: declaration order fixes the corpus
// line order.
var features = []feature{
	{"type_tags", renderTypeTags},
	{"type_tag", renderTypeTag},
	{"detectiteasy", renderDetectItEasy},
	{"type_extension", renderTypeExtension},
	{"import_list", renderImportList},
	{"magic", renderMagic},
	{"mitre_attack_techniques", renderMitreAttackTechniques},
	{"signature_matches", renderSignatureMatches},
	{"registry_keys_opened", behaviourStrings("registry_keys_opened")},
	{"registry_keys_set", renderRegistryKeysSet},
	{"registry_keys_deleted", behaviourStrings("registry_keys_deleted")},
	{"command_executions", renderCommandExecutions},
	{"mutexes_opened", behaviourStrings("mutexes_opened")},
	{"mutexes_created", behaviourStrings("mutexes_created")},
	{"dns_lookups", renderDNSLookups},
	{"calls_highlighted", behaviourStrings("calls_highlighted")},
	{"processes_tree", renderProcessesTree},
	{"processes_created", behaviourStrings("processes_created")},
	{"processes_terminated", behaviourStrings("processes_terminated")},
	{"processes_injected", behaviourStrings("processes_injected")},
	{"modules_loaded", behaviourStrings("modules_loaded")},
	{"files_attribute_changed", behaviourStrings("files_attribute_changed")},
	{"files_deleted", behaviourStrings("files_deleted")},
	{"files_dropped", renderFilesDropped},
	{"files_copied", renderFilesCopied},
	{"files_written", behaviourStrings("files_written")},
	{"files_opened", behaviourStrings("files_opened")},
	{"services_started", behaviourStrings("services_started")},
	{"services_opened", behaviourStrings("services_opened")},
	{"ip_traffic", renderIPTraffic},
	{"http_conversations", renderHTTPConversations},
	{"signals_hooked", behaviourStrings("signals_hooked")},
	{"windows_searched", behaviourStrings("windows_searched")},
}

// Extract renders every known feature of the report, in registry order.
func Extract(r *Report) []string {
	var lines []string
	for _, f := range features {
		lines = append(lines, f.render(r)...)
	}
	return lines
}

// Corpus joins the extracted lines into the classifier input text.
func Corpus(r *Report) string {
	return strings.Join(Extract(r), "\n")
}

func tagged(tag string, values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, "["+tag+"] "+v)
	}
	return out
}

// behaviourStrings covers the common case of a behavioural feature whose
// entries are plain strings.
func behaviourStrings(attr string) renderFunc {
	return func(r *Report) []string {
		var values []string
		for _, item := range r.behaviour(attr) {
			if s := asString(item); s != "" {
				values = append(values, s)
			}
		}
		return tagged(attr, values)
	}
}

func renderTypeTags(r *Report) []string {
	var values []string
	for _, item := range asSlice(r.fileAttr("type_tags")) {
		if s := asString(item); s != "" {
			values = append(values, s)
		}
	}
	return tagged("type_tags", values)
}

func renderTypeTag(r *Report) []string {
	if s := asString(r.fileAttr("type_tag")); s != "" {
		return tagged("type_tag", []string{s})
	}
	return nil
}

func renderTypeExtension(r *Report) []string {
	if s := asString(r.fileAttr("type_extension")); s != "" {
		return tagged("type_extension", []string{s})
	}
	return nil
}

func renderMagic(r *Report) []string {
	if s := asString(r.fileAttr("magic")); s != "" {
		return tagged("magic", []string{s})
	}
	return nil
}

func renderDetectItEasy(r *Report) []string {
	data := asMap(r.fileAttr("detectiteasy"))
	if len(data) == 0 {
		return nil
	}

	filetype := field(data, "filetype", "")

	var values []string
	for _, item := range asSlice(data["values"]) {
		m := asMap(item)
		values = append(values, strings.TrimSpace(strings.Join([]string{
			filetype,
			field(m, "info", ""),
			field(m, "version", ""),
			field(m, "type", ""),
			field(m, "name", ""),
		}, " ")))
	}
	return tagged("detectiteasy", values)
}

func renderImportList(r *Report) []string {
	var values []string
	for _, item := range asSlice(r.fileAttr("import_list")) {
		lib := asMap(item)
		libName := field(lib, "library_name", "-")
		for _, fn := range asSlice(lib["imported_functions"]) {
			if s := asString(fn); s != "" {
				values = append(values, libName+": "+s)
			}
		}
	}
	return tagged("import_list", values)
}

func renderMitreAttackTechniques(r *Report) []string {
	var values []string
	for _, item := range r.behaviour("mitre_attack_techniques") {
		m := asMap(item)
		values = append(values, field(m, "id", "-")+" "+field(m, "signature_description", "-"))
	}
	return tagged("mitre_attack_techniques", values)
}

// renderSignatureMatches de-duplicates after tagging, keeping the first
// occurrence of each line.
func renderSignatureMatches(r *Report) []string {
	var values []string
	for _, item := range r.behaviour("signature_matches") {
		m := asMap(item)
		if desc, ok := m["description"].(string); ok && desc != "" {
			values = append(values, desc)
		}
	}

	lines := tagged("signature_matches", values)
	seen := make(map[string]struct{}, len(lines))
	out := lines[:0]
	for _, line := range lines {
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}

// renderRegistryKeysSet skips entries missing either half: a key without
// a value carries no signal worth a corpus line.
func renderRegistryKeysSet(r *Report) []string {
	var values []string
	for _, item := range r.behaviour("registry_keys_set") {
		m := asMap(item)
		key, keyOK := m["key"].(string)
		value, valueOK := m["value"].(string)
		if !keyOK || !valueOK {
			continue
		}
		values = append(values, "'"+key+"': '"+value+"'")
	}
	return tagged("registry_keys_set", values)
}

func renderCommandExecutions(r *Report) []string {
	var values []string
	for _, item := range r.behaviour("command_executions") {
		if s := strings.TrimSpace(asString(item)); s != "" {
			values = append(values, asString(item))
		}
	}
	return tagged("command_executions", values)
}

func renderDNSLookups(r *Report) []string {
	var values []string
	for _, item := range r.behaviour("dns_lookups") {
		m := asMap(item)
		values = append(values, field(m, "hostname", "-"))
	}
	return tagged("dns_lookups", values)
}

func renderFilesDropped(r *Report) []string {
	var values []string
	for _, item := range r.behaviour("files_dropped") {
		m := asMap(item)
		if p := field(m, "path", ""); p != "" {
			values = append(values, p)
		}
	}
	return tagged("files_dropped", values)
}

func renderFilesCopied(r *Report) []string {
	var values []string
	for _, item := range r.behaviour("files_copied") {
		m := asMap(item)
		values = append(values, "'"+field(m, "source", "")+"' to '"+field(m, "destination", "")+"'")
	}
	return tagged("files_copied", values)
}

func renderIPTraffic(r *Report) []string {
	var values []string
	for _, item := range r.behaviour("ip_traffic") {
		m := asMap(item)
		values = append(values, strings.Join([]string{
			scalarField(m, "transport_layer_protocol"),
			scalarField(m, "destination_ip"),
			scalarField(m, "destination_port"),
		}, " "))
	}
	return tagged("ip_traffic", values)
}

func renderHTTPConversations(r *Report) []string {
	var values []string
	for _, item := range r.behaviour("http_conversations") {
		m := asMap(item)
		values = append(values, field(m, "request_method", "-")+" "+field(m, "url", "-"))
	}
	return tagged("http_conversations", values)
}

// renderProcessesTree flattens the tree to one line per root-to-leaf
// path.
func renderProcessesTree(r *Report) []string {
	var paths []string
	for _, node := range r.behaviour("processes_tree") {
		paths = append(paths, walkProcessNode(asMap(node), nil)...)
	}
	return tagged("processes_tree", paths)
}

func walkProcessNode(node map[string]any, trail []string) []string {
	if node == nil {
		return nil
	}

	trail = append(trail, field(node, "name", "-"))

	children := asSlice(node["children"])
	if len(children) == 0 {
		return []string{strings.Join(trail, " -> ")}
	}

	var paths []string
	for _, child := range children {
		branch := make([]string, len(trail))
		copy(branch, trail)
		paths = append(paths, walkProcessNode(asMap(child), branch)...)
	}
	return paths
}

// scalarField renders a map entry that may be a string or a number.
func scalarField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return "-"
}
