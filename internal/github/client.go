package github

import (
	"context"
	"net/http"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	"scanhub/pkg/logger"
)

// DispatchRequest carries the inputs handed to the scan workflow.
type DispatchRequest struct {
	TargetRepo  string
	ScanID      string
	CallbackURL string
	ScanDepth   string
}

// RepoVerifier checks that a repository exists and is accessible.
type RepoVerifier interface {
	RepositoryExists(ctx context.Context, owner, name string) (bool, error)
}

// WorkflowDispatcher starts the remote scan workflow.
type WorkflowDispatcher interface {
	DispatchScanWorkflow(ctx context.Context, req DispatchRequest) error
}

// Client is a wrapper around the go-github client covering the two calls this
// system makes: the repository existence check and the workflow dispatch.
type Client struct {
	gh           *github.Client
	owner        string
	repo         string
	workflowFile string
	workflowRef  string
	logger       *logger.Logger
}

// NewClient creates a Client authenticated with the given token. owner/repo
// identify the repository hosting the scan workflow, not the scan target.
func NewClient(token, owner, repo, workflowFile, workflowRef string, log *logger.Logger) *Client {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(context.Background(), ts)

	return &Client{
		gh:           github.NewClient(tc),
		owner:        owner,
		repo:         repo,
		workflowFile: workflowFile,
		workflowRef:  workflowRef,
		logger:       log,
	}
}

// RepositoryExists reports whether owner/name is reachable with the configured
// token. A 404 from the API means absent or private, not an error.
func (c *Client) RepositoryExists(ctx context.Context, owner, name string) (bool, error) {
	_, resp, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Client) DispatchScanWorkflow(ctx context.Context, req DispatchRequest) error {
	c.logger.WithFields(logger.Fields{
		"scan_id":     req.ScanID,
		"target_repo": req.TargetRepo,
		"workflow":    c.workflowFile,
	}).Info("Dispatching scan workflow")

	event := github.CreateWorkflowDispatchEventRequest{
		Ref: c.workflowRef,
		Inputs: map[string]interface{}{
			"target_repo":  req.TargetRepo,
			"scan_id":      req.ScanID,
			"callback_url": req.CallbackURL,
			"scan_depth":   req.ScanDepth,
			"timestamp":    time.Now().UTC().Format(time.RFC3339),
		},
	}

	_, err := c.gh.Actions.CreateWorkflowDispatchEventByFileName(
		ctx, c.owner, c.repo, c.workflowFile, event)
	return err
}
