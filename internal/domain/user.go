package domain

// Role enumerates the roles known to the identity provider.
type Role string

const (
	RoleClient               Role = "client"
	RoleSales                Role = "sales"
	RoleAccountManager       Role = "account_manager"
	RoleCareerAssociate      Role = "career_associate"
	RoleCATeamLead           Role = "ca_team_lead"
	RoleResumeTeam           Role = "resume_team"
	RoleResumeTeamHead       Role = "resume_team_head"
	RoleResumeTeamMember     Role = "resume_team_member"
	RoleScrapingTeam         Role = "scraping_team"
	RoleCredentialResolution Role = "credential_resolution"
	RoleCRO                  Role = "cro"
	RoleCROManager           Role = "cro_manager"
	RoleCOO                  Role = "coo"
	RoleCEO                  Role = "ceo"
	RoleSystemAdmin          Role = "system_admin"
)

// ExecutiveRoles bypass assignment checks and see every ticket.
var ExecutiveRoles = []Role{RoleCRO, RoleCOO, RoleCEO}

// IsExecutive reports whether r is one of ExecutiveRoles.
func (r Role) IsExecutive() bool {
	for _, exec := range ExecutiveRoles {
		if r == exec {
			return true
		}
	}
	return false
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleSales, RoleAccountManager, RoleCareerAssociate, RoleCATeamLead,
		RoleResumeTeam, RoleResumeTeamHead, RoleResumeTeamMember, RoleScrapingTeam,
		RoleCredentialResolution, RoleCRO, RoleCROManager, RoleCOO, RoleCEO, RoleSystemAdmin:
		return true
	}
	return false
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role Role
}

// User is a directory entry owned by the identity system.
type User struct {
	ID    string
	Name  string
	Email string
	Role  Role
}

// Client is a customer record owned by the onboarding system.
type Client struct {
	ID                       string
	Name                     string
	Email                    string
	CareerAssociateID        string
	CareerAssociateManagerID string
}

// SelfManaged reports whether the client's career associate is also their manager.
func (c Client) SelfManaged() bool {
	return c.CareerAssociateManagerID != "" && c.CareerAssociateID == c.CareerAssociateManagerID
}
