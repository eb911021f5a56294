/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package appserver

import (
	"crypto/x509/pkix"
	"fmt"
	"strings"
)

// dnOIDKeys maps the RDN attribute OIDs this system understands to the
// short key used when rendering a DN, mirroring
// {domainComponent->DC, organizationalUnitName->OU, commonName->CN}.
var dnOIDKeys = map[string]string{
	"0.9.2342.19200300.100.1.25": "DC",
	"2.5.4.11":                   "OU",
	"2.5.4.3":                    "CN",
}

// buildDN renders a pkix.Name as "/KEY=value/KEY=value...", walking RDN
// attributes in certificate order and skipping any this system doesn't
// translate. crypto/x509 flattens multi-valued RDN sets into individual
// AttributeTypeAndValue entries rather than preserving "+"-joined
// groups, so unlike the original's "+".join(...) this always emits one
// path segment per attribute; harmless for the DC/OU/CN triples this
// system actually keys off of.
func buildDN(name pkix.Name) string {
	var b strings.Builder
	for _, atv := range name.Names {
		key, ok := dnOIDKeys[atv.Type.String()]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "/%s=%v", key, atv.Value)
	}
	return b.String()
}

// identifyPeer tries the peer certificate's subject DN first, then its
// issuer DN, committing user and dn together from whichever lookup
// succeeds first. This resolves the original's ambiguous "overwrites dn
// on a mixed match" behavior with an explicit two-step, first-match-wins
// loop.
func identifyPeer(subject, issuer pkix.Name, master Master) (user, dn string, err error) {
	if d := buildDN(subject); d != "" {
		if u, ok := master.IdentifyUser(d); ok {
			return u, d, nil
		}
	}
	if d := buildDN(issuer); d != "" {
		if u, ok := master.IdentifyUser(d); ok {
			return u, d, nil
		}
	}

	dn = buildDN(subject)
	return "", dn, fmt.Errorf("unidentified user DN %s", dn)
}
