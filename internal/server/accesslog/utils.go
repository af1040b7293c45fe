package accesslog

// sanitizeClient converts a client identity to a filesystem-safe directory name
func sanitizeClient(client string) string {
	if client == "" {
		return "anonymous"
	}
	result := make([]byte, 0, len(client))
	for i := 0; i < len(client); i++ {
		c := client[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '@' || c == '.' || c == '-' || c == '_' {
			result = append(result, c)
		} else {
			result = append(result, '_')
		}
	}
	if name := string(result); name != "." && name != ".." {
		return name
	}
	return "_"
}
