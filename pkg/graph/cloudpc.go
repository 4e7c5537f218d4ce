package graph

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

const virtualEndpoint = "/deviceManagement/virtualEndpoint"

// User is the directory user subset read by the client.
type User struct {
	ID                string `json:"id"`
	UserPrincipalName string `json:"userPrincipalName"`
	DisplayName       string `json:"displayName"`
}

// CloudPC is a provisioned virtual desktop.
type CloudPC struct {
	ID                   string `json:"id"`
	DisplayName          string `json:"displayName"`
	Status               string `json:"status"`
	ServicePlanID        string `json:"servicePlanId"`
	ServicePlanName      string `json:"servicePlanName"`
	ProvisioningPolicyID string `json:"provisioningPolicyId"`
	UserPrincipalName    string `json:"userPrincipalName"`
}

// ProvisioningPolicy describes how Cloud PCs are built for assigned groups.
type ProvisioningPolicy struct {
	ID          string             `json:"id"`
	DisplayName string             `json:"displayName"`
	Assignments []PolicyAssignment `json:"assignments"`
}

// PolicyAssignment binds a policy to a target group.
type PolicyAssignment struct {
	ID     string `json:"id"`
	Target struct {
		GroupID string `json:"groupId"`
	} `json:"target"`
}

// odataQuote escapes a string literal for an OData $filter expression.
func odataQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// GetUser looks up a user by object id or user principal name.
func (c *Client) GetUser(ctx context.Context, idOrUPN string) (*User, error) {
	q := url.Values{}
	q.Set("$select", "id,userPrincipalName,displayName")
	path := "/users/" + url.PathEscape(idOrUPN) + "?" + q.Encode()

	var u User
	if err := c.do(ctx, "GetUser", http.MethodGet, path, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListCloudPCsForUser returns every Cloud PC owned by the given user.
func (c *Client) ListCloudPCsForUser(ctx context.Context, upn string) ([]CloudPC, error) {
	q := url.Values{}
	q.Set("$filter", "userPrincipalName eq "+odataQuote(upn))
	return listAll[CloudPC](ctx, c, "ListCloudPCs", virtualEndpoint+"/cloudPCs?"+q.Encode())
}

// ListProvisioningPolicies returns all provisioning policies with their
// group assignments expanded.
func (c *Client) ListProvisioningPolicies(ctx context.Context) ([]ProvisioningPolicy, error) {
	q := url.Values{}
	q.Set("$expand", "assignments")
	return listAll[ProvisioningPolicy](ctx, c, "ListProvisioningPolicies", virtualEndpoint+"/provisioningPolicies?"+q.Encode())
}

// PolicyIDsForGroup returns the ids of the policies assigned to groupID.
func (c *Client) PolicyIDsForGroup(ctx context.Context, groupID string) ([]string, error) {
	policies, err := c.ListProvisioningPolicies(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, p := range policies {
		for _, a := range p.Assignments {
			if strings.EqualFold(a.Target.GroupID, groupID) {
				ids = append(ids, p.ID)
				break
			}
		}
	}
	return ids, nil
}

// RemoveGroupMember removes a direct member from a group.
func (c *Client) RemoveGroupMember(ctx context.Context, groupID, memberID string) error {
	path := "/groups/" + url.PathEscape(groupID) + "/members/" + url.PathEscape(memberID) + "/$ref"
	return c.do(ctx, "RemoveGroupMember", http.MethodDelete, path, nil, nil)
}

// AddGroupMember adds a directory object to a group.
func (c *Client) AddGroupMember(ctx context.Context, groupID, memberID string) error {
	path := "/groups/" + url.PathEscape(groupID) + "/members/$ref"
	body := map[string]string{
		"@odata.id": c.config.BaseURL + "/directoryObjects/" + memberID,
	}
	return c.do(ctx, "AddGroupMember", http.MethodPost, path, body, nil)
}

// EndGracePeriod asks the service to deprovision a Cloud PC that is in its
// grace period without waiting for the period to lapse.
func (c *Client) EndGracePeriod(ctx context.Context, cloudPCID string) error {
	path := virtualEndpoint + "/cloudPCs/" + url.PathEscape(cloudPCID) + "/endGracePeriod"
	return c.do(ctx, "EndGracePeriod", http.MethodPost, path, nil, nil)
}
