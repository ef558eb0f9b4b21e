package github

import (
	"context"
	"fmt"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"

	"github.com/tidemark-ai/harvest/internal/core/domain"
)

// fetchIssues retrieves issues (excluding pull requests) updated since the
// given time and renders each as a markdown document. Returns the latest
// update timestamp seen, for the cursor.
func fetchIssues(
	ctx context.Context, client *Client, repo *gh.Repository, since time.Time,
) ([]domain.RawDocument, time.Time, error) {
	if !repo.GetHasIssues() {
		return nil, since, nil
	}

	owner := repo.GetOwner().GetLogin()
	name := repo.GetName()

	opts := &gh.IssueListByRepoOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "asc",
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	if !since.IsZero() {
		opts.Since = since
	}

	issues, err := client.ListIssues(ctx, owner, name, opts)
	if err != nil {
		return nil, since, fmt.Errorf("list issues: %w", err)
	}

	docs := make([]domain.RawDocument, 0, len(issues))
	latest := since
	for _, issue := range issues {
		// The issues endpoint also returns pull requests.
		if issue.IsPullRequest() {
			continue
		}

		if updated := issue.GetUpdatedAt().Time; updated.After(latest) {
			latest = updated
		}

		labels := make([]string, len(issue.Labels))
		for i, l := range issue.Labels {
			labels[i] = l.GetName()
		}

		docs = append(docs, domain.RawDocument{
			ExternalID:  fmt.Sprintf("%s/%s/issues/%d", owner, name, issue.GetNumber()),
			Name:        fmt.Sprintf("%s#%d: %s", name, issue.GetNumber(), issue.GetTitle()),
			ContentType: "text/markdown",
			Content:     []byte(renderIssue(issue)),
			ModifiedAt:  issue.GetUpdatedAt().Time,
			Metadata: map[string]any{
				"type":     "issue",
				"owner":    owner,
				"repo":     name,
				"number":   issue.GetNumber(),
				"state":    issue.GetState(),
				"author":   issue.GetUser().GetLogin(),
				"labels":   labels,
				"html_url": issue.GetHTMLURL(),
			},
		})
	}

	return docs, latest, nil
}

// renderIssue flattens an issue into markdown so the chunker sees
// paragraph boundaries between the header, body, and trailer.
func renderIssue(issue *gh.Issue) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", issue.GetTitle())
	fmt.Fprintf(&b, "State: %s\nAuthor: %s\nOpened: %s\n\n",
		issue.GetState(),
		issue.GetUser().GetLogin(),
		issue.GetCreatedAt().Format(time.RFC3339),
	)

	if body := issue.GetBody(); body != "" {
		b.WriteString(body)
		b.WriteString("\n\n")
	}

	if len(issue.Labels) > 0 {
		names := make([]string, len(issue.Labels))
		for i, l := range issue.Labels {
			names[i] = l.GetName()
		}
		fmt.Fprintf(&b, "Labels: %s\n", strings.Join(names, ", "))
	}

	return b.String()
}
