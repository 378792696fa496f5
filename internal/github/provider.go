package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// ErrProviderUnavailable is returned when the gh CLI is missing or not
// authenticated. Callers map it to 503.
var ErrProviderUnavailable = errors.New("github provider unavailable")

// Label is a repository label attached to an issue.
type Label struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Milestone is the issue's milestone, if any.
type Milestone struct {
	Title string `json:"title"`
	DueOn string `json:"due_on,omitempty"`
}

// Issue is the underlying issue of a project item. Draft items have no
// issue.
type Issue struct {
	ID        string     `json:"id"`
	Number    int64      `json:"number"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	State     string     `json:"state"` // OPEN or CLOSED
	URL       string     `json:"url"`
	Assignees []string   `json:"assignees"`
	Labels    []Label    `json:"labels"`
	Milestone *Milestone `json:"milestone,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// FieldValue is one project field on an item, e.g. Status or Priority.
type FieldValue struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// ProjectItem is one row of a GitHub Projects v2 board.
type ProjectItem struct {
	ID          string       `json:"id"`
	Issue       *Issue       `json:"issue,omitempty"`
	FieldValues []FieldValue `json:"field_values"`
}

// StatusField returns the item's project "Status" field value, if set.
func (p ProjectItem) StatusField() (string, bool) {
	for _, fv := range p.FieldValues {
		if fv.Field == "Status" {
			return fv.Value, true
		}
	}
	return "", false
}

// IssueProvider is the port to the remote tracker. The default
// implementation shells out to the gh CLI; tests substitute fakes.
type IssueProvider interface {
	CheckAvailable(ctx context.Context) error
	ProjectItems(ctx context.Context, owner, githubProjectID string) ([]ProjectItem, error)
	UpdateIssue(ctx context.Context, issueID, title, body, state string) error
}

// CLIProvider drives the gh CLI.
type CLIProvider struct {
	bin string
}

// NewCLIProvider creates a provider using the gh binary on PATH.
func NewCLIProvider() *CLIProvider {
	return &CLIProvider{bin: "gh"}
}

// CheckAvailable verifies the gh binary exists and is authenticated.
func (p *CLIProvider) CheckAvailable(ctx context.Context) error {
	if _, err := exec.LookPath(p.bin); err != nil {
		return fmt.Errorf("%w: gh not found on PATH", ErrProviderUnavailable)
	}
	cmd := exec.CommandContext(ctx, p.bin, "auth", "status")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: gh auth status failed: %v", ErrProviderUnavailable, err)
	}
	return nil
}

// ProjectItems fetches the items of a Projects v2 board via the gh
// GraphQL API.
func (p *CLIProvider) ProjectItems(ctx context.Context, owner, githubProjectID string) ([]ProjectItem, error) {
	query := `query($projectId: ID!) {
	  node(id: $projectId) {
	    ... on ProjectV2 {
	      items(first: 100) {
	        nodes {
	          id
	          content {
	            ... on Issue {
	              id number title body state url updatedAt
	              assignees(first: 20) { nodes { login } }
	              labels(first: 20) { nodes { name color } }
	              milestone { title dueOn }
	            }
	          }
	          fieldValues(first: 20) {
	            nodes {
	              ... on ProjectV2ItemFieldSingleSelectValue { name field { ... on ProjectV2FieldCommon { name } } }
	              ... on ProjectV2ItemFieldTextValue { text field { ... on ProjectV2FieldCommon { name } } }
	            }
	          }
	        }
	      }
	    }
	  }
	}`

	cmd := exec.CommandContext(ctx, p.bin, "api", "graphql",
		"-f", "query="+query,
		"-f", "projectId="+githubProjectID)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("gh api graphql failed: %w", err)
	}
	return parseProjectItems(out)
}

// UpdateIssue pushes title, body and open/closed state to an issue.
func (p *CLIProvider) UpdateIssue(ctx context.Context, issueID, title, body, state string) error {
	mutation := `mutation($issueId: ID!, $title: String!, $body: String!, $state: IssueState!) {
	  updateIssue(input: {id: $issueId, title: $title, body: $body, state: $state}) {
	    issue { id }
	  }
	}`

	cmd := exec.CommandContext(ctx, p.bin, "api", "graphql",
		"-f", "query="+mutation,
		"-f", "issueId="+issueID,
		"-f", "title="+title,
		"-f", "body="+body,
		"-f", "state="+state)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("gh update issue failed: %v: %s", err, out)
	}
	return nil
}

// graphql response shapes, only the parts we read
type ghItemsResponse struct {
	Data struct {
		Node struct {
			Items struct {
				Nodes []struct {
					ID      string `json:"id"`
					Content *struct {
						ID        string `json:"id"`
						Number    int64  `json:"number"`
						Title     string `json:"title"`
						Body      string `json:"body"`
						State     string `json:"state"`
						URL       string `json:"url"`
						UpdatedAt string `json:"updatedAt"`
						Assignees struct {
							Nodes []struct {
								Login string `json:"login"`
							} `json:"nodes"`
						} `json:"assignees"`
						Labels struct {
							Nodes []Label `json:"nodes"`
						} `json:"labels"`
						Milestone *struct {
							Title string `json:"title"`
							DueOn string `json:"dueOn"`
						} `json:"milestone"`
					} `json:"content"`
					FieldValues struct {
						Nodes []struct {
							Name string `json:"name"`
							Text string `json:"text"`
							Field *struct {
								Name string `json:"name"`
							} `json:"field"`
						} `json:"nodes"`
					} `json:"fieldValues"`
				} `json:"nodes"`
			} `json:"items"`
		} `json:"node"`
	} `json:"data"`
}

func parseProjectItems(raw []byte) ([]ProjectItem, error) {
	var resp ghItemsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse project items: %w", err)
	}

	var items []ProjectItem
	for _, node := range resp.Data.Node.Items.Nodes {
		item := ProjectItem{ID: node.ID}
		if c := node.Content; c != nil && c.Number > 0 {
			issue := &Issue{
				ID:     c.ID,
				Number: c.Number,
				Title:  c.Title,
				Body:   c.Body,
				State:  c.State,
				URL:    c.URL,
			}
			if t, err := time.Parse(time.RFC3339, c.UpdatedAt); err == nil {
				issue.UpdatedAt = t
			}
			for _, a := range c.Assignees.Nodes {
				issue.Assignees = append(issue.Assignees, a.Login)
			}
			issue.Labels = c.Labels.Nodes
			if c.Milestone != nil {
				issue.Milestone = &Milestone{Title: c.Milestone.Title, DueOn: c.Milestone.DueOn}
			}
			item.Issue = issue
		}
		for _, fv := range node.FieldValues.Nodes {
			if fv.Field == nil {
				continue
			}
			value := fv.Name
			if value == "" {
				value = fv.Text
			}
			if value == "" {
				continue
			}
			item.FieldValues = append(item.FieldValues, FieldValue{Field: fv.Field.Name, Value: value})
		}
		items = append(items, item)
	}
	return items, nil
}

// jsonString marshals a value to its JSON text for property storage.
func jsonString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return strconv.Quote(fmt.Sprint(v))
	}
	return string(b)
}
