package model

// ServerVersion is reported in the connected handshake so clients can detect
// protocol drift across deployments.
const ServerVersion = "1.2.0"
