// Package fakes provides test doubles for dsload's external clients.
//
// Fakes are hand-written (not generated) in-memory implementations of the
// narrow client interfaces the packages depend on: cloud secret stores,
// S3, the OS keyring and the remote bundle opener.
//
// Usage:
//
//	sm := fakes.NewFakeSecretsManagerClient()
//	sm.AddSecretString("data-platform/dev/credentials", `{"WAREHOUSE_USER":"loader"}`)
//	fetcher := remote.NewSecretsManagerFetcher(sm)
package fakes
