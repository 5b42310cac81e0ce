package docs

import (
	"encoding/json"
	"testing"

	"github.com/swaggo/swag"
)

type swaggerDoc struct {
	Paths map[string]map[string]struct {
		Responses map[string]json.RawMessage `json:"responses"`
	} `json:"paths"`
	Definitions map[string]json.RawMessage `json:"definitions"`
}

func readDoc(t *testing.T) swaggerDoc {
	t.Helper()
	raw, err := swag.ReadDoc(SwaggerInfo.InstanceName())
	if err != nil {
		t.Fatalf("read doc: %v", err)
	}
	var doc swaggerDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("doc is not valid JSON: %v", err)
	}
	return doc
}

func TestDocCoversEveryRoute(t *testing.T) {
	doc := readDoc(t)

	routes := map[string]string{
		"/api/polls/create":            "post",
		"/api/polls/{pollId}":          "get",
		"/api/polls/{pollId}/results":  "get",
		"/api/polls/{pollId}/close":    "post",
		"/api/votes/{pollId}/vote":     "post",
		"/api/votes/{pollId}/hasVoted": "get",
		"/ws":                          "get",
	}
	for path, method := range routes {
		if _, ok := doc.Paths[path][method]; !ok {
			t.Fatalf("missing %s %s", method, path)
		}
	}
	if len(doc.Paths) != len(routes) {
		t.Fatalf("expected %d paths, got %d", len(routes), len(doc.Paths))
	}
}

func TestDocVoteResponses(t *testing.T) {
	doc := readDoc(t)

	responses := doc.Paths["/api/votes/{pollId}/vote"]["post"].Responses
	for _, code := range []string{"200", "400", "404", "409", "429", "500"} {
		if _, ok := responses[code]; !ok {
			t.Fatalf("vote route is missing response %s", code)
		}
	}
	if _, ok := responses["403"]; ok {
		t.Fatalf("duplicate votes answer 409, not 403")
	}

	if _, ok := doc.Paths["/ws"]["get"].Responses["101"]; !ok {
		t.Fatalf("websocket route should document 101")
	}

	for _, name := range []string{"poll.Poll", "poll.Results", "poll.Tally", "api.voteResponse"} {
		if _, ok := doc.Definitions[name]; !ok {
			t.Fatalf("missing definition %s", name)
		}
	}
}
