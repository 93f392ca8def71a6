package gtm

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/tagmanager/v2"
)

// ErrNotConfigured is returned when no credentials are available.
var ErrNotConfigured = errors.New("gtm is not configured")

var scopes = []string{
	tagmanager.TagmanagerEditContainersScope,
	tagmanager.TagmanagerEditContainerversionsScope,
	tagmanager.TagmanagerPublishScope,
	tagmanager.TagmanagerReadonlyScope,
}

type Config struct {
	CredentialsJSON string
	CredentialsFile string
	AccountID       string
	ContainerID     string
	WorkspaceID     string
	// Options replace credential lookup entirely, e.g. an endpoint for tests.
	Options []option.ClientOption
}

// Client wraps the Tag Manager v2 API for one default workspace.
type Client struct {
	svc         *tagmanager.Service
	accountID   string
	containerID string
	workspaceID string
	locks       *keyedMutex
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	opts := cfg.Options
	if len(opts) == 0 {
		raw := []byte(cfg.CredentialsJSON)
		if len(raw) == 0 && cfg.CredentialsFile != "" {
			var err error
			raw, err = os.ReadFile(cfg.CredentialsFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read gtm credentials: %w", err)
			}
		}
		if len(raw) == 0 {
			return nil, ErrNotConfigured
		}
		creds, err := google.CredentialsFromJSON(ctx, raw, scopes...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse gtm credentials: %w", err)
		}
		opts = []option.ClientOption{option.WithTokenSource(creds.TokenSource)}
	}

	svc, err := tagmanager.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tagmanager service: %w", err)
	}

	return &Client{
		svc:         svc,
		accountID:   cfg.AccountID,
		containerID: cfg.ContainerID,
		workspaceID: cfg.WorkspaceID,
		locks:       newKeyedMutex(),
	}, nil
}

// Path helpers. Empty ids fall back to the configured defaults.

func (c *Client) AccountPath(accountID string) string {
	if accountID == "" {
		accountID = c.accountID
	}
	return "accounts/" + accountID
}

func (c *Client) ContainerPath(accountID, containerID string) string {
	if containerID == "" {
		containerID = c.containerID
	}
	return c.AccountPath(accountID) + "/containers/" + containerID
}

func (c *Client) WorkspacePath(accountID, containerID, workspaceID string) string {
	if workspaceID == "" {
		workspaceID = c.workspaceID
	}
	return c.ContainerPath(accountID, containerID) + "/workspaces/" + workspaceID
}

func (c *Client) ListAccounts(ctx context.Context) ([]*tagmanager.Account, error) {
	var out []*tagmanager.Account
	err := c.svc.Accounts.List().Pages(ctx, func(page *tagmanager.ListAccountsResponse) error {
		out = append(out, page.Account...)
		return nil
	})
	return out, wrap("list accounts", err)
}

func (c *Client) ListContainers(ctx context.Context, accountPath string) ([]*tagmanager.Container, error) {
	var out []*tagmanager.Container
	err := c.svc.Accounts.Containers.List(accountPath).Pages(ctx, func(page *tagmanager.ListContainersResponse) error {
		out = append(out, page.Container...)
		return nil
	})
	return out, wrap("list containers", err)
}

func (c *Client) ListWorkspaces(ctx context.Context, containerPath string) ([]*tagmanager.Workspace, error) {
	var out []*tagmanager.Workspace
	err := c.svc.Accounts.Containers.Workspaces.List(containerPath).Pages(ctx, func(page *tagmanager.ListWorkspacesResponse) error {
		out = append(out, page.Workspace...)
		return nil
	})
	return out, wrap("list workspaces", err)
}

func (c *Client) ListEnvironments(ctx context.Context, containerPath string) ([]*tagmanager.Environment, error) {
	var out []*tagmanager.Environment
	err := c.svc.Accounts.Containers.Environments.List(containerPath).Pages(ctx, func(page *tagmanager.ListEnvironmentsResponse) error {
		out = append(out, page.Environment...)
		return nil
	})
	return out, wrap("list environments", err)
}

func (c *Client) ListTags(ctx context.Context, workspacePath string) ([]*tagmanager.Tag, error) {
	var out []*tagmanager.Tag
	err := c.svc.Accounts.Containers.Workspaces.Tags.List(workspacePath).Pages(ctx, func(page *tagmanager.ListTagsResponse) error {
		out = append(out, page.Tag...)
		return nil
	})
	return out, wrap("list tags", err)
}

func (c *Client) ListTriggers(ctx context.Context, workspacePath string) ([]*tagmanager.Trigger, error) {
	var out []*tagmanager.Trigger
	err := c.svc.Accounts.Containers.Workspaces.Triggers.List(workspacePath).Pages(ctx, func(page *tagmanager.ListTriggersResponse) error {
		out = append(out, page.Trigger...)
		return nil
	})
	return out, wrap("list triggers", err)
}

func (c *Client) ListVariables(ctx context.Context, workspacePath string) ([]*tagmanager.Variable, error) {
	var out []*tagmanager.Variable
	err := c.svc.Accounts.Containers.Workspaces.Variables.List(workspacePath).Pages(ctx, func(page *tagmanager.ListVariablesResponse) error {
		out = append(out, page.Variable...)
		return nil
	})
	return out, wrap("list variables", err)
}

func (c *Client) ListFolders(ctx context.Context, workspacePath string) ([]*tagmanager.Folder, error) {
	var out []*tagmanager.Folder
	err := c.svc.Accounts.Containers.Workspaces.Folders.List(workspacePath).Pages(ctx, func(page *tagmanager.ListFoldersResponse) error {
		out = append(out, page.Folder...)
		return nil
	})
	return out, wrap("list folders", err)
}

func (c *Client) CreateTag(ctx context.Context, workspacePath string, tag *tagmanager.Tag) (*tagmanager.Tag, error) {
	out, err := c.svc.Accounts.Containers.Workspaces.Tags.Create(workspacePath, tag).Context(ctx).Do()
	return out, wrap("create tag", err)
}

// UpdateTag writes tag over tagPath; fingerprint must match the server copy.
func (c *Client) UpdateTag(ctx context.Context, tagPath, fingerprint string, tag *tagmanager.Tag) (*tagmanager.Tag, error) {
	out, err := c.svc.Accounts.Containers.Workspaces.Tags.Update(tagPath, tag).Fingerprint(fingerprint).Context(ctx).Do()
	return out, wrap("update tag", err)
}

func (c *Client) DeleteTag(ctx context.Context, tagPath string) error {
	return wrap("delete tag", c.svc.Accounts.Containers.Workspaces.Tags.Delete(tagPath).Context(ctx).Do())
}

func (c *Client) CreateTrigger(ctx context.Context, workspacePath string, trigger *tagmanager.Trigger) (*tagmanager.Trigger, error) {
	out, err := c.svc.Accounts.Containers.Workspaces.Triggers.Create(workspacePath, trigger).Context(ctx).Do()
	return out, wrap("create trigger", err)
}

// Publish snapshots the workspace into a container version and publishes it.
func (c *Client) Publish(ctx context.Context, workspacePath, name, notes string) (*tagmanager.ContainerVersion, error) {
	created, err := c.svc.Accounts.Containers.Workspaces.CreateVersion(workspacePath,
		&tagmanager.CreateContainerVersionRequestVersionOptions{Name: name, Notes: notes}).Context(ctx).Do()
	if err != nil {
		return nil, wrap("create version", err)
	}
	if created.CompilerError || created.ContainerVersion == nil {
		return nil, fmt.Errorf("gtm create version: workspace has compiler errors")
	}

	published, err := c.svc.Accounts.Containers.Versions.Publish(created.ContainerVersion.Path).Context(ctx).Do()
	if err != nil {
		return nil, wrap("publish version", err)
	}
	return published.ContainerVersion, nil
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("gtm %s: %w", op, err)
}
