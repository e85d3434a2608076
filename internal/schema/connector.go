// Package schema provides the connector that queries a live schema-bearing
// org so the schema-analysis stage can ground its recommendations in the
// objects that already exist.
package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ObjectSummary is a lightweight listing entry for an org object.
type ObjectSummary struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	Custom bool   `json:"custom"`
}

// Field describes one field on an org object.
type Field struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	ReferenceTo string `json:"reference_to,omitempty"`
}

// ObjectSchema is the full describe result for one org object.
type ObjectSchema struct {
	Name   string  `json:"name"`
	Label  string  `json:"label"`
	Custom bool    `json:"custom"`
	Fields []Field `json:"fields"`
}

// Connector is the opaque capability used by the schema-analysis stage.
// Implementations query an external schema-bearing system; failures surface
// as ordinary errors and become the stage's execution error.
type Connector interface {
	ListObjects(ctx context.Context) ([]ObjectSummary, error)
	DescribeObject(ctx context.Context, name string) (*ObjectSchema, error)
}

// RESTConnector implements Connector against a Salesforce-style describe API.
type RESTConnector struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewRESTConnector creates a connector for the given API base URL and bearer
// token.
func NewRESTConnector(baseURL, token string, timeout time.Duration) *RESTConnector {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RESTConnector{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *RESTConnector) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("org API request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("org API returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode org API response: %w", err)
	}
	return nil
}

// ListObjects returns summaries of all objects in the org.
func (c *RESTConnector) ListObjects(ctx context.Context) ([]ObjectSummary, error) {
	var payload struct {
		Sobjects []struct {
			Name   string `json:"name"`
			Label  string `json:"label"`
			Custom bool   `json:"custom"`
		} `json:"sobjects"`
	}
	if err := c.get(ctx, "/sobjects", &payload); err != nil {
		return nil, err
	}

	objects := make([]ObjectSummary, 0, len(payload.Sobjects))
	for _, o := range payload.Sobjects {
		objects = append(objects, ObjectSummary{Name: o.Name, Label: o.Label, Custom: o.Custom})
	}
	return objects, nil
}

// DescribeObject returns the full schema for one object.
func (c *RESTConnector) DescribeObject(ctx context.Context, name string) (*ObjectSchema, error) {
	var payload struct {
		Name   string `json:"name"`
		Label  string `json:"label"`
		Custom bool   `json:"custom"`
		Fields []struct {
			Name        string   `json:"name"`
			Label       string   `json:"label"`
			Type        string   `json:"type"`
			Nillable    bool     `json:"nillable"`
			ReferenceTo []string `json:"referenceTo"`
		} `json:"fields"`
	}
	if err := c.get(ctx, "/sobjects/"+name+"/describe", &payload); err != nil {
		return nil, err
	}

	obj := &ObjectSchema{Name: payload.Name, Label: payload.Label, Custom: payload.Custom}
	for _, f := range payload.Fields {
		field := Field{
			Name:     f.Name,
			Label:    f.Label,
			Type:     f.Type,
			Required: !f.Nillable,
		}
		if len(f.ReferenceTo) > 0 {
			field.ReferenceTo = strings.Join(f.ReferenceTo, ",")
		}
		obj.Fields = append(obj.Fields, field)
	}
	return obj, nil
}

// DescribeSummary renders one object's field schema as prompt context,
// bounded to maxFields entries. A nil or fieldless object renders empty.
func DescribeSummary(obj *ObjectSchema, maxFields int) string {
	if obj == nil || len(obj.Fields) == 0 {
		return ""
	}
	fields := obj.Fields
	if maxFields > 0 && len(fields) > maxFields {
		fields = fields[:maxFields]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Fields on %s:\n", obj.Name)
	for _, f := range fields {
		fmt.Fprintf(&b, "- %s (%s", f.Name, f.Type)
		if f.Required {
			b.WriteString(", required")
		}
		if f.ReferenceTo != "" {
			fmt.Fprintf(&b, ", references %s", f.ReferenceTo)
		}
		b.WriteString(")\n")
	}
	return b.String()
}

// Summarize renders an org object listing as prompt context. The output is
// bounded: at most maxObjects entries, one line each.
func Summarize(objects []ObjectSummary, maxObjects int) string {
	if len(objects) == 0 {
		return "No existing org objects available."
	}
	if maxObjects > 0 && len(objects) > maxObjects {
		objects = objects[:maxObjects]
	}

	var b strings.Builder
	b.WriteString("Existing org objects:\n")
	for _, o := range objects {
		kind := "standard"
		if o.Custom {
			kind = "custom"
		}
		fmt.Fprintf(&b, "- %s (%s, %s)\n", o.Name, o.Label, kind)
	}
	return b.String()
}
