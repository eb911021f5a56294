/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package appserver

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"testing"
)

var (
	oidDC = asn1.ObjectIdentifier{0, 9, 2342, 19200300, 100, 1, 25}
	oidOU = asn1.ObjectIdentifier{2, 5, 4, 11}
	oidCN = asn1.ObjectIdentifier{2, 5, 4, 3}
)

func nameWithAttrs(attrs ...pkix.AttributeTypeAndValue) pkix.Name {
	return pkix.Name{Names: attrs}
}

func attr(oid asn1.ObjectIdentifier, value string) pkix.AttributeTypeAndValue {
	return pkix.AttributeTypeAndValue{Type: oid, Value: value}
}

func TestBuildDN(t *testing.T) {
	name := nameWithAttrs(attr(oidDC, "org"), attr(oidDC, "cern"), attr(oidOU, "users"), attr(oidCN, "alice"))
	dn := buildDN(name)
	if dn != "/DC=org/DC=cern/OU=users/CN=alice" {
		t.Fatalf("unexpected DN: %s", dn)
	}
}

func TestBuildDNSkipsUntranslatedAttributes(t *testing.T) {
	name := nameWithAttrs(attr(asn1.ObjectIdentifier{2, 5, 4, 10}, "CERN"), attr(oidCN, "alice"))
	dn := buildDN(name)
	if dn != "/CN=alice" {
		t.Fatalf("expected organizationName to be skipped, got %s", dn)
	}
}

type stubMaster struct {
	users map[string]string
}

func (m *stubMaster) IdentifyUser(dn string) (string, bool) {
	u, ok := m.users[dn]
	return u, ok
}
func (m *stubMaster) AuthorizeUser(string, string) bool { return true }
func (m *stubMaster) GetApplication(int64) (Application, bool) { return Application{}, false }
func (m *stubMaster) Kill(int64) (Application, bool, bool) { return Application{}, false, false }
func (m *stubMaster) ScheduleApp(*Application) error { return nil }
func (m *stubMaster) AwaitRun(int64) Application { return Application{} }
func (m *stubMaster) AwaitExit(int64) Application { return Application{} }

func TestIdentifyPeerSubjectMatch(t *testing.T) {
	master := &stubMaster{users: map[string]string{"/DC=org/DC=cern/OU=users/CN=alice": "alice"}}
	subject := nameWithAttrs(attr(oidDC, "org"), attr(oidDC, "cern"), attr(oidOU, "users"), attr(oidCN, "alice"))
	issuer := nameWithAttrs(attr(oidCN, "ca"))

	user, dn, err := identifyPeer(subject, issuer, master)
	if err != nil {
		t.Fatalf("identifyPeer: %v", err)
	}
	if user != "alice" || dn != "/DC=org/DC=cern/OU=users/CN=alice" {
		t.Fatalf("unexpected result: %s %s", user, dn)
	}
}

func TestIdentifyPeerFallsBackToIssuer(t *testing.T) {
	master := &stubMaster{users: map[string]string{"/CN=ca": "service-account"}}
	subject := nameWithAttrs(attr(oidCN, "unknown"))
	issuer := nameWithAttrs(attr(oidCN, "ca"))

	user, dn, err := identifyPeer(subject, issuer, master)
	if err != nil {
		t.Fatalf("identifyPeer: %v", err)
	}
	if user != "service-account" || dn != "/CN=ca" {
		t.Fatalf("unexpected result: %s %s", user, dn)
	}
}

func TestIdentifyPeerUnidentified(t *testing.T) {
	master := &stubMaster{users: map[string]string{}}
	subject := nameWithAttrs(attr(oidCN, "nobody"))
	issuer := nameWithAttrs(attr(oidCN, "ca"))

	_, _, err := identifyPeer(subject, issuer, master)
	if err == nil {
		t.Fatalf("expected an unidentified-DN error")
	}
}
