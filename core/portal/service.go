package portal

import (
	"context"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core"
	"github.com/chekos/pedagogical-engine/core/learner"
	"github.com/chekos/pedagogical-engine/core/skill"
)

var (
	ErrInvalidLink = errors.New("invalid or expired portal link")

	tokenSalt = []byte("pedagogical-engine.core.portal.link")
)

type (
	// Link is a shareable portal URL.
	Link struct {
		LearnerID string    `json:"learner_id"`
		Token     string    `json:"token"`
		URL       string    `json:"url"`
		ExpiresAt time.Time `json:"expires_at"`
	}

	NewLink struct {
		Audience Audience `json:"audience" validate:"omitempty,oneof=learner parent"`
		Language string   `json:"language"`
	}

	// ShareLink emails a portal link.
	ShareLink struct {
		NewLink
		Emails []string `json:"emails" validate:"required,min=1,dive,email"`
	}

	Service interface {
		MakeLink(ctx context.Context, learnerID string, nl NewLink) (Link, error)
		// VerifyToken returns ErrInvalidLink unless token is a live link of the learner
		// made for audience.
		VerifyToken(ctx context.Context, learnerID, token string, audience Audience) error
		View(ctx context.Context, learnerID, lang string, audience Audience) (View, error)
		Share(ctx context.Context, learnerID string, sl ShareLink, educatorName string) (Link, error)
	}

	service struct {
		learnerRepo learner.Repository
		skillRepo   skill.Repository
		mailSvc     core.EmailService
		conf        *core.Config
		localizer   *Localizer
		tokens      core.TokenGenerator
		nowFunc     func() time.Time // mockable
	}
)

var _ Service = (*service)(nil)

func (nl *NewLink) Validate(validate *validator.Validate) error {
	nl.Language = core.CleanString(nl.Language, true /* lower */)
	return validate.Struct(nl)
}

func (sl *ShareLink) Validate(validate *validator.Validate) error {
	sl.Language = core.CleanString(sl.Language, true /* lower */)
	for i, e := range sl.Emails {
		sl.Emails[i] = core.CleanString(e, true /* lower */)
	}
	return validate.Struct(sl)
}

func NewService(learnerRepo learner.Repository, skillRepo skill.Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{
		learnerRepo: learnerRepo,
		skillRepo:   skillRepo,
		mailSvc:     mailSvc,
		conf:        conf,
		localizer:   NewLocalizer(conf.Portal.DefaultLanguage),
		tokens: core.TokenGenerator{
			Salt:    tokenSalt,
			Secret:  conf.SecretKey,
			Timeout: conf.Portal.TokenTimeoutDelta,
		},
		nowFunc: time.Now,
	}
}

// tokenValue changes when the learner record is recreated, so links of a deleted learner die with it.
// The audience is signed so a learner link cannot be switched to the parent view.
func tokenValue(p learner.Profile, audience Audience) []byte {
	return []byte(p.ID + "|" + p.CreatedAt.UTC().Format(time.RFC3339) + "|" + string(audience))
}

func (svc *service) generator() core.TokenGenerator {
	gen := svc.tokens
	gen.NowFunc = svc.nowFunc
	return gen
}

func (svc *service) MakeLink(ctx context.Context, learnerID string, nl NewLink) (Link, error) {
	p, err := svc.learnerRepo.Get(ctx, learnerID)
	if err != nil {
		return Link{}, err
	}
	return svc.makeLink(p, nl)
}

func (svc *service) makeLink(p learner.Profile, nl NewLink) (Link, error) {
	audience := nl.Audience
	if audience == "" {
		audience = AudienceLearner
	}
	token, err := svc.generator().Make(tokenValue(p, audience))
	if err != nil {
		return Link{}, errors.Wrap(err, "making portal token")
	}
	q := url.Values{"token": {token}, "audience": {string(audience)}}
	if nl.Language != "" {
		q.Set("lang", svc.localizer.Language(nl.Language))
	}
	return Link{
		LearnerID: p.ID,
		Token:     token,
		URL:       strings.TrimRight(svc.conf.FrontendBaseURL, "/") + "/portal/" + url.PathEscape(p.ID) + "?" + q.Encode(),
		ExpiresAt: svc.nowFunc().UTC().Add(svc.tokens.Timeout),
	}, nil
}

func (svc *service) VerifyToken(ctx context.Context, learnerID, token string, audience Audience) error {
	p, err := svc.learnerRepo.Get(ctx, learnerID)
	if err != nil {
		if core.IsNotFound(err) {
			return ErrInvalidLink
		}
		return err
	}
	if err = svc.generator().Verify(tokenValue(p, audience), token); err != nil {
		return ErrInvalidLink
	}
	return nil
}

func (svc *service) View(ctx context.Context, learnerID, lang string, audience Audience) (View, error) {
	p, err := svc.learnerRepo.Get(ctx, learnerID)
	if err != nil {
		return View{}, err
	}
	if p.Domain == "" {
		return View{}, core.NewConflictError("the learner has no domain")
	}
	g, err := svc.skillRepo.GetGraph(ctx, p.Domain)
	if err != nil {
		return View{}, err
	}
	return svc.localizer.Build(p, g, lang, audience)
}

func (svc *service) Share(ctx context.Context, learnerID string, sl ShareLink, educatorName string) (Link, error) {
	p, err := svc.learnerRepo.Get(ctx, learnerID)
	if err != nil {
		return Link{}, err
	}
	if sl.Audience == "" {
		sl.Audience = AudienceParent
	}
	link, err := svc.makeLink(p, sl.NewLink)
	if err != nil {
		return Link{}, err
	}

	to := make([]mail.Address, 0, len(sl.Emails))
	for _, e := range sl.Emails {
		to = append(to, mail.Address{Address: e})
	}
	trans := svc.localizer.Translator(sl.Language)
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           to,
		Subject:      tr(trans, msgLinkSubject, p.Name),
		TemplateName: "portal_link",
		TemplateData: map[string]string{
			"EducatorName": educatorName,
			"LearnerName":  p.Name,
			"URL":          link.URL,
			"ExpiresOn":    trans.FmtDateLong(link.ExpiresAt),
		},
	})
	return link, nil
}
