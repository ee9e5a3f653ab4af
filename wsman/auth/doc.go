// Package auth provides authentication handlers for WSMan connections.
//
// # Supported Authentication Methods
//
//   - Basic: HTTP Basic authentication (use only over TLS)
//   - NTLM: NT LAN Manager authentication (via github.com/Azure/go-ntlmssp)
//   - Negotiate: SPNEGO driven by a pluggable SecurityProvider
//   - Kerberos: a SecurityProvider backed by github.com/go-krb5/krb5
//
// Explicit credentials are always required. Kerberos reads krb5.conf from
// $KRB5_CONFIG or /etc/krb5.conf.
//
// # Usage
//
// NTLM authentication:
//
//	auth := auth.NewNTLMAuth(auth.Credentials{
//	    Username: "administrator",
//	    Password: "password",
//	    Domain:   "DOMAIN",
//	})
//
// Kerberos authentication:
//
//	provider, _ := auth.NewKerberosProvider(auth.KerberosProviderConfig{
//	    TargetSPN:   "HTTP/server.domain.com",
//	    Realm:       "DOMAIN.COM",
//	    Credentials: &auth.Credentials{Username: "user", Password: "pass"},
//	})
//	auth := auth.NewNegotiateAuth(provider)
package auth
