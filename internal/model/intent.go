package model

// Op names the action a chat message asks for.
type Op string

const (
	OpDeploy   Op = "deploy"
	OpRenew    Op = "renew"
	OpExpire   Op = "expire"
	OpTeardown Op = "teardown"
	OpAccess   Op = "access"
	OpList     Op = "list"
	OpInfo     Op = "info"
	OpCheck    Op = "check"
	OpHelp     Op = "help"
)

// Intent is a parsed chat command. Only the fields relevant to Op are set.
type Intent struct {
	Op       Op     `json:"op" validate:"required,oneof=deploy renew expire teardown access list info check help"`
	Cluster  string `json:"cluster,omitempty" validate:"omitempty,slug"`
	Life     string `json:"life,omitempty" validate:"omitempty,hours"`
	Region   string `json:"region,omitempty"`
	Instance string `json:"instance,omitempty"`
	Size     string `json:"size,omitempty" validate:"omitempty,numeric"`
	Version  string `json:"version,omitempty"`
}

// SpecInput extracts the deploy parameters of the intent.
func (i Intent) SpecInput() SpecInput {
	return SpecInput{
		Region:   i.Region,
		Instance: i.Instance,
		Size:     i.Size,
		Version:  i.Version,
		Life:     i.Life,
	}
}
