package vcsurl

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	govcsurl "github.com/gitsight/go-vcsurl"
)

type VCSType int

const (
	UnknownVCS VCSType = iota // UnknownVCS means the type should be determined from the URL
	GenericVCS                // GenericVCS means a host we have no dedicated client for
	Github                    // Github means that the VCS is Github
	Gitlab                    // Gitlab means that the VCS is Gitlab
)

// define allowed schemes: http, https and ssh
var validSchemes = []string{"http", "https", "ssh"}

func isValidScheme(scheme string) bool {
	for _, validScheme := range validSchemes {
		if scheme == validScheme {
			return true
		}
	}
	return false
}

// VCSURL represents a parsed repository URL.
type VCSURL struct {
	Namespace  string
	Repository string
	HTTPUrl    string
	SSHUrl     string
	Raw        string
	VCSType    VCSType
	ParsedURL  *url.URL
}

// determineVCSType determines the VCS type. Well-known hosts are classified
// by go-vcsurl; self-hosted instances fall back to a hostname heuristic.
func determineVCSType(raw, host string) VCSType {
	if info, err := govcsurl.Parse(raw); err == nil {
		switch info.Host {
		case govcsurl.GitHub:
			return Github
		case govcsurl.GitLab:
			return Gitlab
		}
	}
	switch {
	case strings.Contains(host, "github"):
		return Github
	case strings.Contains(host, "gitlab"):
		return Gitlab
	default:
		return GenericVCS
	}
}

var gitAtURL = regexp.MustCompile(`^git@([^:]+)\:(.*)$`)

// Parse parses a repository URL and returns a VCSURL struct.
func Parse(raw string) (*VCSURL, error) {
	var vcsURL VCSURL
	vcsURL.Raw = raw

	// preparse special type of URLs like "git@<host>:<path>"
	rawURL := raw
	if parts := gitAtURL.FindStringSubmatch(rawURL); len(parts) == 3 {
		rawURL = fmt.Sprintf("ssh://%s/%s", parts[1], parts[2])
	}

	rawURL = strings.TrimSuffix(rawURL, ".git")

	parsedURL, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return nil, err
	}
	vcsURL.ParsedURL = parsedURL

	if !isValidScheme(vcsURL.ParsedURL.Scheme) {
		return nil, fmt.Errorf("invalid scheme: %s", vcsURL.Raw)
	}

	vcsURL.VCSType = determineVCSType(rawURL, vcsURL.ParsedURL.Hostname())

	pathDirs := getPathDirs(vcsURL.ParsedURL.Path)
	if len(pathDirs) < 2 {
		return nil, fmt.Errorf("URL %q does not point to a repository", raw)
	}

	vcsURL.Namespace = strings.Join(pathDirs[0:len(pathDirs)-1], "/")
	vcsURL.Repository = pathDirs[len(pathDirs)-1]
	vcsURL.HTTPUrl = fmt.Sprintf("https://%s/%s/%s", vcsURL.ParsedURL.Hostname(), vcsURL.Namespace, vcsURL.Repository)
	vcsURL.SSHUrl = fmt.Sprintf("ssh://git@%s/%s/%s.git", vcsURL.ParsedURL.Hostname(), vcsURL.Namespace, vcsURL.Repository)

	return &vcsURL, nil
}

// ParseRepositoryURL parses a registration URL, which must be an HTTPS URL of
// the form https://<host>/<owner>/<repo>. Anything else is rejected.
func ParseRepositoryURL(raw string) (*VCSURL, error) {
	parsed, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if parsed.ParsedURL.Scheme != "https" {
		return nil, fmt.Errorf("registration URL must use https: %s", raw)
	}
	if parsed.Namespace == "" || parsed.Repository == "" || strings.Contains(parsed.Namespace, "/") {
		return nil, fmt.Errorf("registration URL must be https://<host>/<owner>/<repo>: %s", raw)
	}
	return parsed, nil
}

func getPathDirs(path string) []string {
	var dirs []string
	for _, dir := range strings.Split(path, "/") {
		if dir != "" {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}
