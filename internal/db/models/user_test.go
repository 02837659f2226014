package models

import "testing"

func TestUserName(t *testing.T) {
	tests := []struct {
		first, last, want string
	}{
		{"Ann", "Lee", "Ann Lee"},
		{"Ann", "", "Ann"},
		{"", "Lee", "Lee"},
		{"", "", ""},
	}
	for _, tt := range tests {
		u := &User{FirstName: tt.first, LastName: tt.last}
		if got := u.Name(); got != tt.want {
			t.Errorf("Name(%q, %q) = %q, want %q", tt.first, tt.last, got, tt.want)
		}
	}
}

func TestUserIsVendor(t *testing.T) {
	if !(&User{OrganizationType: OrgTypeHealthITVendor}).IsVendor() {
		t.Error("health_it_vendor user should be a vendor")
	}
	if (&User{OrganizationType: OrgTypePrimaryCareClinic}).IsVendor() {
		t.Error("primary care user should not be a vendor")
	}
}

func TestRegisteredOrganizationHelpers(t *testing.T) {
	ro := &RegisteredOrganization{APIEnv: APIEnvSandbox}
	if ro.Persisted() {
		t.Error("new record should not be persisted")
	}
	if !ro.IsSandbox() {
		t.Error("sandbox record should report IsSandbox")
	}
	ro.ID = "ro-1"
	ro.APIEnv = APIEnvProduction
	if !ro.Persisted() || ro.IsSandbox() {
		t.Error("saved production record misreported")
	}
}

func TestFhirEndpointEditable(t *testing.T) {
	var nilEndpoint *FhirEndpoint
	if nilEndpoint.Editable() {
		t.Error("nil endpoint should not be editable")
	}
	if (&FhirEndpoint{Kind: EndpointDefault}).Editable() {
		t.Error("default endpoint should not be editable")
	}
	if !(&FhirEndpoint{Kind: EndpointEditable}).Editable() {
		t.Error("editable endpoint should be editable")
	}
}
