package psk

func builtin() []Entry {
	return []Entry{
		// HKDF-SHA256
		{ID: 1, Secret: []byte{166, 74, 40, 96, 216, 149, 173, 61, 146, 6, 204, 211, 206, 217, 20, 96, 88, 203, 183, 222, 4, 248, 166, 100, 231, 213, 111, 244, 152, 168, 150, 88}},
		{ID: 2, Secret: []byte{136, 221, 141, 112, 173, 179, 212, 5, 89, 128, 70, 242, 63, 232, 89, 89, 98, 144, 3, 158, 239, 50, 19, 189, 232, 225, 167, 140, 117, 46, 66, 246}},
		{ID: 3, Secret: []byte{30, 166, 92, 95, 198, 232, 94, 241, 173, 165, 216, 23, 45, 19, 1, 35, 64, 152, 85, 166, 59, 127, 231, 79, 185, 18, 232, 140, 69, 83, 19, 157}},

		// HKDF-SHA384
		{ID: 1, Secret: []byte{219, 157, 14, 183, 113, 255, 170, 71, 85, 145, 107, 169, 103, 228, 25, 65, 11, 222, 86, 212, 66, 42, 85, 200, 109, 83, 94, 70, 5, 171, 231, 60, 162, 181, 139, 6, 232, 208, 60, 178, 69, 92, 47, 118, 227, 69, 76, 252}},
		{ID: 2, Secret: []byte{44, 107, 146, 149, 91, 25, 55, 69, 17, 57, 222, 249, 2, 41, 35, 184, 87, 103, 238, 142, 90, 28, 79, 90, 192, 169, 188, 61, 149, 172, 6, 225, 247, 189, 246, 253, 240, 48, 50, 119, 236, 107, 221, 129, 236, 253, 157, 208}},
		{ID: 3, Secret: []byte{136, 112, 24, 242, 85, 165, 212, 135, 90, 251, 55, 118, 212, 123, 131, 122, 126, 76, 249, 198, 178, 180, 61, 145, 127, 97, 170, 230, 94, 25, 144, 242, 184, 132, 51, 20, 183, 41, 200, 42, 188, 37, 247, 243, 225, 95, 216, 221}},

		// HKDF-SHA512
		{ID: 1, Secret: []byte{201, 89, 61, 88, 152, 62, 116, 134, 114, 58, 116, 64, 38, 249, 130, 172, 36, 130, 164, 124, 126, 36, 61, 155, 150, 74, 33, 193, 47, 80, 160, 207, 232, 161, 169, 222, 214, 65, 184, 26, 61, 238, 119, 156, 185, 64, 69, 12, 253, 253, 206, 127, 38, 239, 166, 173, 179, 137, 220, 132, 237, 55, 138, 6}},
		{ID: 2, Secret: []byte{66, 106, 62, 93, 90, 233, 58, 252, 51, 18, 185, 36, 85, 163, 173, 86, 244, 26, 72, 85, 205, 36, 157, 144, 92, 29, 40, 235, 246, 45, 13, 210, 230, 138, 166, 223, 44, 198, 183, 58, 18, 71, 51, 39, 84, 33, 49, 178, 192, 102, 153, 112, 188, 53, 222, 68, 210, 150, 50, 249, 102, 158, 218, 53}},
		{ID: 3, Secret: []byte{62, 149, 11, 184, 180, 80, 5, 51, 120, 239, 115, 144, 124, 238, 100, 204, 221, 71, 119, 127, 28, 176, 192, 117, 84, 185, 139, 39, 84, 73, 247, 123, 100, 167, 117, 207, 253, 226, 26, 50, 145, 204, 249, 248, 140, 173, 67, 77, 107, 130, 55, 243, 62, 108, 223, 15, 67, 227, 27, 36, 228, 57, 203, 183}},
	}
}
