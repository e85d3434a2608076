package schema

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/sobjects", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sobjects": [
			{"name": "Account", "label": "Account", "custom": false},
			{"name": "Candidate__c", "label": "Candidate", "custom": true}
		]}`))
	})
	mux.HandleFunc("/sobjects/Candidate__c/describe", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"name": "Candidate__c", "label": "Candidate", "custom": true,
			"fields": [
				{"name": "Name", "label": "Name", "type": "string", "nillable": false, "referenceTo": []},
				{"name": "Recruiter__c", "label": "Recruiter", "type": "reference", "nillable": true, "referenceTo": ["User"]}
			]
		}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestListObjects(t *testing.T) {
	t.Parallel()

	srv := newTestAPI(t)
	c := NewRESTConnector(srv.URL, "test-token", time.Second)

	objects, err := c.ListObjects(context.Background())
	if err != nil {
		t.Fatalf("ListObjects: %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("len = %d, want 2", len(objects))
	}
	if objects[1].Name != "Candidate__c" || !objects[1].Custom {
		t.Errorf("objects[1] = %+v", objects[1])
	}
}

func TestListObjectsUnauthorized(t *testing.T) {
	t.Parallel()

	srv := newTestAPI(t)
	c := NewRESTConnector(srv.URL, "wrong-token", time.Second)

	_, err := c.ListObjects(context.Background())
	if err == nil {
		t.Fatalf("expected error for bad token")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error should carry the status code: %v", err)
	}
}

func TestDescribeObject(t *testing.T) {
	t.Parallel()

	srv := newTestAPI(t)
	c := NewRESTConnector(srv.URL, "test-token", time.Second)

	obj, err := c.DescribeObject(context.Background(), "Candidate__c")
	if err != nil {
		t.Fatalf("DescribeObject: %v", err)
	}
	if obj.Name != "Candidate__c" || len(obj.Fields) != 2 {
		t.Fatalf("obj = %+v", obj)
	}
	if !obj.Fields[0].Required {
		t.Errorf("non-nillable field should be required")
	}
	if obj.Fields[1].ReferenceTo != "User" {
		t.Errorf("ReferenceTo = %q", obj.Fields[1].ReferenceTo)
	}
}

func TestDescribeSummary(t *testing.T) {
	t.Parallel()

	if out := DescribeSummary(nil, 10); out != "" {
		t.Errorf("nil object summary = %q, want empty", out)
	}
	if out := DescribeSummary(&ObjectSchema{Name: "Empty__c"}, 10); out != "" {
		t.Errorf("fieldless object summary = %q, want empty", out)
	}

	obj := &ObjectSchema{
		Name: "Candidate__c",
		Fields: []Field{
			{Name: "Name", Type: "string", Required: true},
			{Name: "Recruiter__c", Type: "reference", ReferenceTo: "User"},
			{Name: "Stage__c", Type: "picklist"},
		},
	}
	out := DescribeSummary(obj, 2)
	if !strings.Contains(out, "Fields on Candidate__c") {
		t.Errorf("summary missing header: %q", out)
	}
	if !strings.Contains(out, "Name (string, required)") {
		t.Errorf("required field not rendered: %q", out)
	}
	if !strings.Contains(out, "Recruiter__c (reference, references User)") {
		t.Errorf("reference field not rendered: %q", out)
	}
	if strings.Contains(out, "Stage__c") {
		t.Errorf("maxFields not honored: %q", out)
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	out := Summarize(nil, 10)
	if !strings.Contains(out, "No existing org objects") {
		t.Errorf("empty summary = %q", out)
	}

	objects := []ObjectSummary{
		{Name: "Account", Label: "Account"},
		{Name: "Candidate__c", Label: "Candidate", Custom: true},
		{Name: "Contact", Label: "Contact"},
	}
	out = Summarize(objects, 2)
	if !strings.Contains(out, "Account") || !strings.Contains(out, "Candidate__c (Candidate, custom)") {
		t.Errorf("summary = %q", out)
	}
	if strings.Contains(out, "Contact") {
		t.Errorf("maxObjects not honored: %q", out)
	}
}
