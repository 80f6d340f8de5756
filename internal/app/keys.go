package app

// Storage key names under the namespace.
const (
	KeyCart     = "cart"
	KeyProducts = "products"
)

// StorageKey builds a namespaced key, e.g. StorageKey("GoMarketplace", "cart") = "@GoMarketplace:cart".
func StorageKey(namespace, name string) string {
	return "@" + namespace + ":" + name
}
