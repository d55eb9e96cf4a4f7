package lifecycle

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// RegisterLifecycleRoutes mounts the lifecycle API. Administrative
// routes are wrapped in the session middleware when the controller
// carries a guard and token service; the third-party login route is
// always open.
func RegisterLifecycleRoutes[T any](app router.Router[T], opts ...LifecycleControllerOption) {

	controller := NewLifecycleController(opts...)

	guarded := controller.sessionMiddleware()

	app.
		Post(controller.Routes.RegisterSpa, controller.SpaRegisterPost).
		SetName("spa-register.post")

	app.
		Post(
			fmt.Sprintf("%s/:type/:id/transition", controller.Routes.Entities),
			guarded(controller.TransitionPost),
		).
		SetName("entity-transition.post")

	app.
		Post(controller.Routes.ThirdPartyAccounts, guarded(controller.CredentialCreatePost)).
		SetName("third-party-accounts.post")

	app.
		Post(controller.Routes.ThirdPartyLogin, controller.CredentialLoginPost).
		SetName("third-party-login.post")

	app.
		Get(controller.Routes.Audit, guarded(controller.AuditGet)).
		SetName("audit.get")

	app.
		Get(fmt.Sprintf("%s/summary", controller.Routes.Audit), guarded(controller.AuditSummaryGet)).
		SetName("audit-summary.get")
}

type LifecycleControllerRoutes struct {
	RegisterSpa        string
	Entities           string
	ThirdPartyAccounts string
	ThirdPartyLogin    string
	Audit              string
}

type LifecycleController struct {
	Debug            bool
	Logger           Logger
	Repo             RepositoryManager
	SpaMachine       SpaStateMachine
	TherapistMachine TherapistStateMachine
	Credentials      CredentialManager
	Guard            SessionGuard
	Tokens           TokenService
	Projector        Projector
	Routes           *LifecycleControllerRoutes
}

type LifecycleControllerOption func(*LifecycleController) *LifecycleController

func NewLifecycleController(opts ...LifecycleControllerOption) *LifecycleController {
	c := &LifecycleController{
		Logger: defLogger{},
		Routes: &LifecycleControllerRoutes{
			RegisterSpa:        "/spas",
			Entities:           "/entities",
			ThirdPartyAccounts: "/third-party/accounts",
			ThirdPartyLogin:    "/third-party/login",
			Audit:              "/audit",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in lifecycle controller...")
	}

	if c.SpaMachine == nil {
		c.SpaMachine = NewSpaStateMachine(c.Repo)
	}

	if c.TherapistMachine == nil {
		c.TherapistMachine = NewTherapistStateMachine(c.Repo)
	}

	if c.Credentials == nil {
		c.Credentials = NewCredentialManager(c.Repo)
	}

	if c.Projector == nil {
		c.Projector = NewProjector(c.Repo)
	}

	return c
}

// WithControllerDebug enables verbose payload dumps.
func WithControllerDebug(debug bool) LifecycleControllerOption {
	return func(c *LifecycleController) *LifecycleController {
		c.Debug = debug
		return c
	}
}

// WithControllerLogger overrides the default logger.
func WithControllerLogger(logger Logger) LifecycleControllerOption {
	return func(c *LifecycleController) *LifecycleController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithControllerRepo sets the repository manager. Required.
func WithControllerRepo(repo RepositoryManager) LifecycleControllerOption {
	return func(c *LifecycleController) *LifecycleController {
		c.Repo = repo
		return c
	}
}

// WithControllerMachines sets both entity state machines.
func WithControllerMachines(spas SpaStateMachine, therapists TherapistStateMachine) LifecycleControllerOption {
	return func(c *LifecycleController) *LifecycleController {
		c.SpaMachine = spas
		c.TherapistMachine = therapists
		return c
	}
}

// WithControllerCredentials sets the credential manager.
func WithControllerCredentials(manager CredentialManager) LifecycleControllerOption {
	return func(c *LifecycleController) *LifecycleController {
		c.Credentials = manager
		return c
	}
}

// WithControllerSessionGuard sets the session guard and token service
// used by the administrative middleware.
func WithControllerSessionGuard(guard SessionGuard, tokens TokenService) LifecycleControllerOption {
	return func(c *LifecycleController) *LifecycleController {
		c.Guard = guard
		c.Tokens = tokens
		return c
	}
}

// WithControllerProjector sets the audit projector.
func WithControllerProjector(projector Projector) LifecycleControllerOption {
	return func(c *LifecycleController) *LifecycleController {
		c.Projector = projector
		return c
	}
}

// WithControllerRoutes overrides the default route paths.
func WithControllerRoutes(routes *LifecycleControllerRoutes) LifecycleControllerOption {
	return func(c *LifecycleController) *LifecycleController {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

// sessionMiddleware returns the admin gate, or a pass-through when the
// controller was built without a guard (embedding hosts that run their
// own auth stack).
func (a *LifecycleController) sessionMiddleware() router.MiddlewareFunc {
	if a.Guard == nil || a.Tokens == nil {
		return func(hf router.HandlerFunc) router.HandlerFunc {
			return hf
		}
	}
	return RequireActiveSession(a.Tokens, a.Guard, a.Logger)
}

// SpaRegisterPayload is the registration body.
type SpaRegisterPayload struct {
	Name         string `form:"name" json:"name"`
	OwnerContact string `form:"owner_contact" json:"owner_contact"`
}

// Validate will run validation rules
func (r SpaRegisterPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.OwnerContact, validation.Required, validation.Length(3, 200)),
	)
}

func (a *LifecycleController) SpaRegisterPost(ctx router.Context) error {
	payload := new(SpaRegisterPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("spa register parse payload: %v", err)
		return a.badRequest(ctx, "Error parsing body", err)
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("spa register validate payload: %v", err)
		return a.validationError(ctx, err)
	}

	if a.Debug {
		fmt.Println("======= SPA REGISTER ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("===========================")
	}

	var created *Spa
	req := RegisterSpaMessage{
		Name:         payload.Name,
		OwnerContact: payload.OwnerContact,
		OnResponse: func(spa *Spa) {
			created = spa
		},
	}

	registerSpa := RegisterSpaHandler{repo: a.Repo}
	if err := registerSpa.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("spa register execute: %v", err)
		return WriteError(ctx, a.Logger, err)
	}

	return ctx.JSON(fiber.StatusCreated, created)
}

// TransitionPayload is the operator transition body.
type TransitionPayload struct {
	Action  string `form:"action" json:"action"`
	Reason  string `form:"reason" json:"reason"`
	ActorID string `form:"actor_id" json:"actor_id"`
}

// Validate will run validation rules
func (r TransitionPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Action, validation.Required, validation.By(validateAction)),
		validation.Field(&r.Reason, validation.Length(0, 500)),
		validation.Field(&r.ActorID, validation.Length(0, 200)),
	)
}

func validateAction(value any) error {
	s, _ := value.(string)
	if _, ok := ParseAction(s); !ok {
		return fmt.Errorf("unknown action %q", s)
	}
	return nil
}

func (a *LifecycleController) TransitionPost(ctx router.Context) error {
	entityType := EntityType(ctx.Param("type", ""))
	if !entityType.HasLifecycle() {
		return WriteError(ctx, a.Logger, ErrRecordNotFound.WithMetadata(map[string]any{
			"entity_type": entityType,
		}))
	}

	id, err := uuid.Parse(ctx.Param("id", ""))
	if err != nil {
		return a.badRequest(ctx, "Invalid entity id", err)
	}

	payload := new(TransitionPayload)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("transition parse payload: %v", err)
		return a.badRequest(ctx, "Error parsing body", err)
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("transition validate payload: %v", err)
		return a.validationError(ctx, err)
	}

	action, _ := ParseAction(payload.Action)
	actor := ActorRef{ID: payload.ActorID, Type: "admin"}
	if actor.ID == "" {
		if principal, ok := PrincipalFromRouterContext(ctx); ok {
			actor.ID = principal
		}
	}

	if a.Debug {
		fmt.Println("======= TRANSITION ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=========================")
	}

	switch entityType {
	case EntityTypeSpa:
		spa, err := a.Repo.Spas().FindByID(ctx.Context(), id)
		if err != nil {
			return WriteError(ctx, a.Logger, err)
		}
		if spa, err = a.SpaMachine.Apply(ctx.Context(), actor, spa, action, WithTransitionReason(payload.Reason)); err != nil {
			return a.transitionError(ctx, err)
		}
		return ctx.JSON(fiber.StatusOK, transitionResponse{Status: "ok", Record: spa})
	default:
		therapist, err := a.Repo.Therapists().FindByID(ctx.Context(), id)
		if err != nil {
			return WriteError(ctx, a.Logger, err)
		}
		if therapist, err = a.TherapistMachine.Apply(ctx.Context(), actor, therapist, action, WithTransitionReason(payload.Reason)); err != nil {
			return a.transitionError(ctx, err)
		}
		return ctx.JSON(fiber.StatusOK, transitionResponse{Status: "ok", Record: therapist})
	}
}

// transitionResponse carries the coarse outcome word alongside the
// record or error envelope so API consumers can branch without mapping
// HTTP status codes.
type transitionResponse struct {
	Status string     `json:"status"`
	Record any        `json:"record,omitempty"`
	Error  *errorBody `json:"error,omitempty"`
}

// transitionError reports a failed transition. Conflict-category errors
// read as "conflict"; everything the machine refused reads as "invalid".
func (a *LifecycleController) transitionError(ctx router.Context, err error) error {
	a.Logger.Error("transition: %v", err)

	richErr := asRichError(err)
	outcome := "invalid"
	if richErr.Category == goerrors.CategoryConflict {
		outcome = "conflict"
	}

	return ctx.JSON(statusForError(richErr), transitionResponse{
		Status: outcome,
		Error: &errorBody{
			Message:  richErr.Message,
			TextCode: richErr.TextCode,
			Category: string(richErr.Category),
			Metadata: richErr.Metadata,
		},
	})
}

// CredentialCreatePayload is the third-party account body.
type CredentialCreatePayload struct {
	Username      string `form:"username" json:"username"`
	Password      string `form:"password" json:"password"`
	DurationHours int    `form:"duration_hours" json:"duration_hours"`
}

// Validate will run validation rules
func (r CredentialCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(3, 100), is.Alphanumeric),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(&r.DurationHours, validation.Min(0), validation.Max(720)),
	)
}

type credentialCreateResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	IssuedAt  string `json:"issued_at"`
	ExpiresAt string `json:"expires_at"`
}

func (a *LifecycleController) CredentialCreatePost(ctx router.Context) error {
	payload := new(CredentialCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("credential create parse payload: %v", err)
		return a.badRequest(ctx, "Error parsing body", err)
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("credential create validate payload: %v", err)
		return a.validationError(ctx, err)
	}

	var created *ThirdPartyCredential
	req := IssueCredentialMessage{
		Username:      payload.Username,
		Password:      payload.Password,
		DurationHours: payload.DurationHours,
		OnResponse: func(cred *ThirdPartyCredential) {
			created = cred
		},
	}

	issue := IssueCredentialHandler{manager: a.Credentials}
	if err := issue.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("credential create execute: %v", err)
		return WriteError(ctx, a.Logger, err)
	}

	return ctx.JSON(fiber.StatusCreated, credentialCreateResponse{
		ID:        created.ID.String(),
		Username:  created.Username,
		IssuedAt:  created.IssuedAt.Format("2006-01-02T15:04:05Z07:00"),
		ExpiresAt: created.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// CredentialLoginPayload is the third-party login body.
type CredentialLoginPayload struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r CredentialLoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

type credentialLoginResponse struct {
	Token     string `json:"token,omitempty"`
	Scope     string `json:"scope"`
	ExpiresAt string `json:"expires_at"`
}

func (a *LifecycleController) CredentialLoginPost(ctx router.Context) error {
	payload := new(CredentialLoginPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("credential login parse payload: %v", err)
		return a.badRequest(ctx, "Error parsing body", err)
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("credential login validate payload: %v", err)
		return a.validationError(ctx, err)
	}

	principal, err := a.Credentials.Validate(ctx.Context(), payload.Username, payload.Password)
	if err != nil {
		a.Logger.Error("credential login: %v", err)
		return WriteError(ctx, a.Logger, err)
	}

	resp := credentialLoginResponse{
		Scope:     principal.Scope,
		ExpiresAt: principal.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	}

	if a.Tokens != nil {
		token, err := a.Tokens.GenerateForCredential(principal)
		if err != nil {
			return WriteError(ctx, a.Logger, err)
		}
		resp.Token = token
	}

	return ctx.JSON(fiber.StatusOK, resp)
}

func (a *LifecycleController) AuditGet(ctx router.Context) error {
	filter := AuditFilter{
		EntityType: EntityType(ctx.Query("entity_type", "")),
		Status:     ctx.Query("status", ""),
		Limit:      ctx.QueryInt("limit", 0),
	}

	events, err := a.Projector.Query(ctx.Context(), filter)
	if err != nil {
		return WriteError(ctx, a.Logger, err)
	}

	return ctx.JSON(fiber.StatusOK, map[string]any{
		"events": events,
	})
}

func (a *LifecycleController) AuditSummaryGet(ctx router.Context) error {
	summary, err := a.Projector.Summary(ctx.Context())
	if err != nil {
		return WriteError(ctx, a.Logger, err)
	}

	return ctx.JSON(fiber.StatusOK, summary)
}

func (a *LifecycleController) badRequest(ctx router.Context, message string, err error) error {
	return ctx.JSON(fiber.StatusBadRequest, errorResponse{Error: errorBody{
		Message:  message,
		Category: "validation",
		Metadata: map[string]any{"detail": err.Error()},
	}})
}

func (a *LifecycleController) validationError(ctx router.Context, err error) error {
	return ctx.JSON(fiber.StatusBadRequest, errorResponse{Error: errorBody{
		Message:  "Error validating payload",
		Category: "validation",
		Metadata: map[string]any{"validation": FormatValidationErrorToMap(err)},
	}})
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field to message map.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	if errs, ok := err.(validation.Errors); ok {
		for field, ferr := range errs {
			out[field] = ferr.Error()
		}
		return out
	}

	out["error"] = err.Error()
	return out
}
