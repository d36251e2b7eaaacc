package revalidate

import "github.com/CCSDForge/episciences-front-next-sub002/internal/tenant"

// SecretKey is the tenant env file entry holding a journal's
// revalidation secret.
const SecretKey = "REVALIDATE_TOKEN"

type tenantConfigSecrets struct {
	loader *tenant.ConfigLoader
}

// NewTenantConfigSecrets resolves journal secrets from the tenant env
// files.
func NewTenantConfigSecrets(loader *tenant.ConfigLoader) SecretSource {
	return tenantConfigSecrets{loader: loader}
}

func (s tenantConfigSecrets) Secret(journal string) string {
	return s.loader.Secret(journal, SecretKey)
}
