// Package config loads casino client configuration from YAML.
//
// Values of the form ${VAR} are expanded from the environment before parsing,
// so secrets such as the session token and database password can stay out of
// the file:
//
//	connection:
//	  url: wss://casino.example.com/ws
//	  token: ${CASINO_TOKEN}
package config
