package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/Bitconch/authz/name"
	"github.com/Bitconch/authz/permission"
)

func (a *API) registerQueryRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("permissions"))

	if err := g.GET("/accounts/:account/permissions", a.listPermissions,
		forge.WithSummary("List account permissions"),
		forge.WithDescription("Returns the account's permission tree, name ascending."),
		forge.WithOperationID("listAccountPermissions"),
		forge.WithResponseSchema(http.StatusOK, "Permission list", []PermissionView{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/accounts/:account/links", a.listLinks,
		forge.WithSummary("List account links"),
		forge.WithDescription("Returns the account's action links, (contract, action) ascending."),
		forge.WithOperationID("listAccountLinks"),
		forge.WithResponseSchema(http.StatusOK, "Link list", []LinkView{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.GET("/authz/minimum-permission", a.minimumPermission,
		forge.WithSummary("Resolve minimum permission"),
		forge.WithDescription("Returns the weakest permission that authorizes the given contract action for the authorizer."),
		forge.WithOperationID("minimumPermission"),
		forge.WithRequestSchema(MinimumPermissionRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Minimum permission", MinimumPermissionResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) listPermissions(ctx forge.Context, _ *AccountRequest) ([]PermissionView, error) {
	account, err := name.Parse(ctx.Param("account"))
	if err != nil {
		return nil, forge.BadRequest("invalid account name")
	}

	perms, err := a.mgr.Store().PermissionsByOwner(ctx.Context(), account)
	if err != nil {
		return nil, mapError(err)
	}

	views := make([]PermissionView, len(perms))
	for i, p := range perms {
		view := PermissionView{
			Name:        p.Name.String(),
			Threshold:   p.Auth.Threshold,
			LastUpdated: p.LastUpdated,
		}
		if p.Parent != 0 {
			parent, err := a.mgr.Store().PermissionByID(ctx.Context(), p.Parent)
			if err != nil {
				return nil, mapError(err)
			}
			view.Parent = parent.Name.String()
		}
		if lastUsed, err := a.mgr.PermissionLastUsed(ctx.Context(), p); err == nil {
			view.LastUsed = lastUsed
		}
		views[i] = view
	}
	return views, ctx.JSON(http.StatusOK, views)
}

func (a *API) listLinks(ctx forge.Context, _ *AccountRequest) ([]LinkView, error) {
	account, err := name.Parse(ctx.Param("account"))
	if err != nil {
		return nil, forge.BadRequest("invalid account name")
	}

	links, err := a.mgr.Store().LinksByOwner(ctx.Context(), account)
	if err != nil {
		return nil, mapError(err)
	}

	views := make([]LinkView, len(links))
	for i, l := range links {
		views[i] = linkView(l)
	}
	return views, ctx.JSON(http.StatusOK, views)
}

func (a *API) minimumPermission(ctx forge.Context, req *MinimumPermissionRequest) (*MinimumPermissionResponse, error) {
	if req.Authorizer == "" || req.Contract == "" || req.Action == "" {
		return nil, forge.BadRequest("authorizer, contract, and action are required")
	}

	min, ok, err := a.mgr.LookupMinimumPermission(ctx.Context(),
		name.AccountName(req.Authorizer), name.AccountName(req.Contract), name.ActionName(req.Action))
	if err != nil {
		return nil, mapError(err)
	}

	resp := &MinimumPermissionResponse{Any: !ok}
	if ok {
		resp.Permission = min.String()
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func linkView(l *permission.Link) LinkView {
	return LinkView{
		Contract:           l.Contract.String(),
		Action:             l.Action.String(),
		RequiredPermission: l.RequiredPermission.String(),
	}
}
