package api

import (
	"net/http"
	"time"

	"github.com/xraph/forge"

	"github.com/Bitconch/authz"
	"github.com/Bitconch/authz/authority"
	"github.com/Bitconch/authz/name"
	"github.com/Bitconch/authz/transaction"
)

func (a *API) registerCheckRoutes(router forge.Router) error {
	g := router.Group("/v1/authz", forge.WithGroupTags("authorization"))

	if err := g.POST("/check", a.check,
		forge.WithSummary("Transaction authorization check"),
		forge.WithDescription("Decides whether the declared authorizations are satisfied by the provided keys, permissions, and delay."),
		forge.WithOperationID("authzCheck"),
		forge.WithRequestSchema(CheckRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Check verdict", AuthorizedResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/check-permission", a.checkPermission,
		forge.WithSummary("Single permission check"),
		forge.WithDescription("Decides whether one permission is satisfied by the provided keys, permissions, and delay."),
		forge.WithOperationID("authzCheckPermission"),
		forge.WithRequestSchema(CheckPermissionRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Check verdict", AuthorizedResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.POST("/required-keys", a.requiredKeys,
		forge.WithSummary("Required signing keys"),
		forge.WithDescription("Returns the subset of candidate keys the transaction's declared authorizations require."),
		forge.WithOperationID("authzRequiredKeys"),
		forge.WithRequestSchema(RequiredKeysRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Required keys", RequiredKeysResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) check(ctx forge.Context, req *CheckRequest) (*AuthorizedResponse, error) {
	if len(req.Actions) == 0 {
		return nil, forge.BadRequest("actions cannot be empty")
	}

	err := a.mgr.CheckAuthorization(ctx.Context(), &authz.CheckRequest{
		Actions:             toActions(req.Actions),
		ProvidedKeys:        toKeys(req.ProvidedKeys),
		ProvidedPermissions: toLevels(req.ProvidedPermissions),
		ProvidedDelay:       time.Duration(req.ProvidedDelaySec) * time.Second,
		AllowUnusedKeys:     req.AllowUnusedKeys,
	})

	resp, err := toVerdict(err)
	if err != nil {
		return nil, err
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) checkPermission(ctx forge.Context, req *CheckPermissionRequest) (*AuthorizedResponse, error) {
	if req.Account == "" || req.Permission == "" {
		return nil, forge.BadRequest("account and permission are required")
	}

	err := a.mgr.CheckPermissionAuthorization(ctx.Context(), &authz.PermissionCheckRequest{
		Account:             name.AccountName(req.Account),
		Permission:          name.PermissionName(req.Permission),
		ProvidedKeys:        toKeys(req.ProvidedKeys),
		ProvidedPermissions: toLevels(req.ProvidedPermissions),
		ProvidedDelay:       time.Duration(req.ProvidedDelaySec) * time.Second,
		AllowUnusedKeys:     req.AllowUnusedKeys,
	})

	resp, err := toVerdict(err)
	if err != nil {
		return nil, err
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) requiredKeys(ctx forge.Context, req *RequiredKeysRequest) (*RequiredKeysResponse, error) {
	if len(req.Actions) == 0 {
		return nil, forge.BadRequest("actions cannot be empty")
	}

	trx := &transaction.Transaction{Actions: toActions(req.Actions)}
	keys, err := a.mgr.GetRequiredKeys(ctx.Context(), trx, toKeys(req.CandidateKeys), time.Duration(req.ProvidedDelaySec)*time.Second)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &RequiredKeysResponse{RequiredKeys: fromKeys(keys)}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func toActions(in []Action) []*transaction.Action {
	out := make([]*transaction.Action, len(in))
	for i, act := range in {
		out[i] = &transaction.Action{
			Account:       name.AccountName(act.Account),
			Name:          name.ActionName(act.Name),
			Authorization: toLevels(act.Authorization),
			Data:          act.Data,
		}
	}
	return out
}

func toLevels(in []PermissionLevel) []authority.PermissionLevel {
	out := make([]authority.PermissionLevel, len(in))
	for i, l := range in {
		out[i] = authority.PermissionLevel{
			Actor:      name.AccountName(l.Actor),
			Permission: name.PermissionName(l.Permission),
		}
	}
	return out
}

func toKeys(in []string) []authority.PublicKey {
	out := make([]authority.PublicKey, len(in))
	for i, k := range in {
		out[i] = authority.PublicKey(k)
	}
	return out
}

func fromKeys(in []authority.PublicKey) []string {
	out := make([]string, len(in))
	for i, k := range in {
		out[i] = string(k)
	}
	return out
}
