package parsers

import (
	"fmt"
	"regexp"
	"strings"
)

// RepoRef identifies a repository on a git hosting service.
type RepoRef struct {
	Host  string
	Owner string
	Name  string
}

func (r RepoRef) FullName() string {
	return r.Owner + "/" + r.Name
}

var repoURLPattern = regexp.MustCompile(`^https://([^/]+)/([^/]+)/([^/]+?)/?$`)

// ParseRepoURL extracts owner and repository name from an https repository URL
// of the form https://host/owner/repo. A trailing slash and a trailing .git
// suffix are tolerated.
func ParseRepoURL(raw string) (RepoRef, error) {
	trimmed := strings.TrimSpace(raw)
	match := repoURLPattern.FindStringSubmatch(trimmed)
	if match == nil {
		return RepoRef{}, fmt.Errorf("invalid repository URL: %q", raw)
	}

	name := strings.TrimSuffix(match[3], ".git")
	if name == "" || match[2] == "" {
		return RepoRef{}, fmt.Errorf("invalid repository URL: %q", raw)
	}

	return RepoRef{
		Host:  match[1],
		Owner: match[2],
		Name:  name,
	}, nil
}
