package agent

import (
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core"
)

var ErrRoleNotFound = core.NewNotFoundError("agent role")

// Built-in role names
const (
	RoleAssessment = "assessment"
	RoleLesson     = "lesson"
	RoleCurriculum = "curriculum"
)

// Role is an agent persona: its system prompt and the tools it may call.
type Role struct {
	Name        string   `toml:"name" json:"name"`
	Description string   `toml:"description" json:"description"`
	Prompt      string   `toml:"prompt" json:"prompt,omitempty"`
	Tools       []string `toml:"tools" json:"tools"`
	Model       string   `toml:"model" json:"model,omitempty"`
	MaxTurns    int      `toml:"max_turns" json:"max_turns,omitempty"`
}

func DefaultRoles() []Role {
	return []Role{
		{
			Name:        RoleAssessment,
			Description: "Runs a skill assessment conversation and records the evidence on the learner profile.",
			Prompt: "You are an assessment assistant for an educator. Ask short diagnostic questions, " +
				"one skill at a time, starting from the most advanced skill you expect the learner to hold. " +
				"Use query_skill_graph to pick skills and assess_learner to record what the learner did or did not demonstrate. " +
				"Demonstrating a skill implies its prerequisites, so do not test what the graph already tells you.",
			Tools: []string{"query_skill_graph", "get_learner", "list_group", "group_summary", "assess_learner"},
		},
		{
			Name:        RoleLesson,
			Description: "Drafts and reviews lesson plans against the group profile.",
			Prompt: "You help an educator plan a lesson for a group. Check the group summary before proposing activities, " +
				"write lesson plans in markdown with timed sections, validate drafts with parse_lesson " +
				"and only call save_lesson once the educator agrees. Use lesson_readiness to flag learners missing prerequisites.",
			Tools: []string{
				"query_skill_graph", "get_learner", "list_group", "group_summary",
				"parse_lesson", "save_lesson", "lesson_readiness", "search_lessons",
			},
		},
		{
			Name:        RoleCurriculum,
			Description: "Sequences target skills into a multi-session curriculum.",
			Prompt: "You help an educator turn target skills into a sequence of sessions. " +
				"Skills most of the group already holds are skipped. Explain the order you chose " +
				"and reuse stored lessons found with search_lessons where they fit.",
			Tools: []string{"query_skill_graph", "list_group", "group_summary", "sequence_curriculum", "search_lessons"},
		},
	}
}

// Catalog holds the roles available to sessions.
type Catalog struct {
	roles map[string]Role
}

func NewCatalog(roles ...Role) *Catalog {
	c := &Catalog{roles: make(map[string]Role, len(roles))}
	for _, r := range roles {
		c.roles[r.Name] = r
	}
	return c
}

// LoadCatalog returns the default roles overridden by the [roles.<name>] tables of the TOML file at path.
// Fields left empty in the file keep the default value. An empty path returns the defaults.
func LoadCatalog(path string) (*Catalog, error) {
	c := NewCatalog(DefaultRoles()...)
	if path == "" {
		return c, nil
	}
	var file struct {
		Roles map[string]Role `toml:"roles"`
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, errors.Wrap(err, "decoding roles file")
	}
	if err := c.merge(file.Roles); err != nil {
		return nil, err
	}
	return c, nil
}

// ParseCatalog is LoadCatalog over TOML content.
func ParseCatalog(content string) (*Catalog, error) {
	var file struct {
		Roles map[string]Role `toml:"roles"`
	}
	if _, err := toml.Decode(content, &file); err != nil {
		return nil, errors.Wrap(err, "decoding roles")
	}
	c := NewCatalog(DefaultRoles()...)
	if err := c.merge(file.Roles); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) merge(roles map[string]Role) error {
	names := make([]string, 0, len(roles))
	for name := range roles {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		override := roles[name]
		if !core.SlugRegex.MatchString(name) {
			return errors.Errorf("invalid role name %q", name)
		}
		r, ok := c.roles[name]
		if !ok {
			r = Role{Name: name}
		}
		if override.Description != "" {
			r.Description = override.Description
		}
		if override.Prompt != "" {
			r.Prompt = override.Prompt
		}
		if override.Tools != nil {
			r.Tools = override.Tools
		}
		if override.Model != "" {
			r.Model = override.Model
		}
		if override.MaxTurns != 0 {
			r.MaxTurns = override.MaxTurns
		}
		if r.Prompt == "" {
			return errors.Errorf("role %q has no prompt", name)
		}
		c.roles[name] = r
	}
	return nil
}

func (c *Catalog) Get(name string) (Role, error) {
	r, ok := c.roles[name]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return r, nil
}

// List returns the roles sorted by name.
func (c *Catalog) List() []Role {
	roles := make([]Role, 0, len(c.roles))
	for _, r := range c.roles {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles
}
