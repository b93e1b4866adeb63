package files

import (
	"context"
	"path"

	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core"
	"github.com/chekos/pedagogical-engine/core/skill"
)

const domainsDir = "domains"

type skillRepository struct {
	store *Store
}

var _ skill.Repository = (*skillRepository)(nil)

func NewSkillRepository(store *Store) skill.Repository {
	return &skillRepository{store: store}
}

func graphPath(domain string) string {
	return path.Join(domainsDir, domain, "skills.json")
}

func (repo *skillRepository) ListDomains(ctx context.Context) ([]skill.Domain, error) {
	dirs, err := repo.store.ListDirs(domainsDir)
	if err != nil {
		return nil, err
	}
	domains := make([]skill.Domain, 0, len(dirs))
	for _, d := range dirs {
		if !repo.store.Exists(graphPath(d)) {
			continue
		}
		g, err := repo.GetGraph(ctx, d)
		if err != nil {
			return nil, err
		}
		domains = append(domains, skill.Domain{
			Name:       d,
			Version:    g.Version,
			SkillCount: len(g.Skills),
			EdgeCount:  len(g.Edges),
		})
	}
	return domains, nil
}

func (repo *skillRepository) GetGraph(_ context.Context, domain string) (*skill.Graph, error) {
	if !core.SlugRegex.MatchString(domain) {
		return nil, skill.ErrNotFound
	}
	var g skill.Graph
	if err := repo.store.ReadJSON(graphPath(domain), &g); err != nil {
		if IsNotExist(err) {
			return nil, skill.ErrNotFound
		}
		return nil, err
	}
	if g.Domain == "" {
		g.Domain = domain
	}
	g.Index()
	return &g, nil
}

func (repo *skillRepository) SaveGraph(_ context.Context, g *skill.Graph) error {
	if err := g.Validate(); err != nil {
		return err
	}
	return errors.Wrap(repo.store.WriteJSON(graphPath(g.Domain), g), "saving skill graph")
}
